// Confirm submits one intent to the bank at API_BASE_URL and walks it through the confirmation gates on
// the terminal.
//
//	confirm -customer cust-1 -kind payment -form payment.json
//	confirm -customer cust-1 -kind payee -form payee.json -replace-payee p-123
//
// The form file holds the JSON form for the kind (see internal/intent). With -replace-payee the payee is
// deleted and recreated from the form without any confirmation gate. Exit status is 0 on success, 1 when
// the run is rejected or fails, and 2 when the form is invalid.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"bizbank-confirmation/internal/app"
	"bizbank-confirmation/internal/config"
	"bizbank-confirmation/internal/console"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/payee"
	"bizbank-confirmation/internal/workflow"
)

const serviceName = "bizbank-confirm"

func main() {
	os.Exit(run())
}

func run() int {
	customer := flag.String("customer", "", "Customer id the intent is submitted for")
	kind := flag.String("kind", string(domain.KindPayment), "Intent kind: payee, payment or fx-order")
	formPath := flag.String("form", "", "Path to the JSON form file")
	replace := flag.String("replace-payee", "", "Existing payee id to replace (kind payee only)")
	flag.Parse()

	if *customer == "" || *formPath == "" {
		flag.Usage()
		return 2
	}
	form, err := os.ReadFile(*formPath)
	if err != nil {
		log.Printf("read form: %v", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, serviceName, workflow.Context{CustomerID: *customer}, logger)
	if err != nil {
		logger.Error("confirm: wiring", zap.Error(err))
		return 1
	}
	defer func() { _ = a.Close(context.Background()) }()

	in, err := a.Builder.Submit(ctx, *customer, domain.Kind(*kind), form)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintln(os.Stderr, "The form is not valid:")
			for _, f := range ve.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %s %s\n", f.Field, f.Code, f.Detail)
			}
			return 2
		}
		logger.Error("confirm: submit", zap.Error(err))
		return 1
	}

	if *replace != "" {
		id, err := a.Editor.Edit(ctx, *replace, in)
		if err != nil {
			if errors.Is(err, payee.ErrRecreateFailed) {
				fmt.Fprintf(os.Stderr, "Payee %s was deleted but could not be recreated: %v\n", *replace, err)
			} else {
				fmt.Fprintf(os.Stderr, "Payee edit failed: %v\n", err)
			}
			return 1
		}
		fmt.Printf("Payee %s replaced by %s.\n", *replace, id)
		return 0
	}

	r, err := a.Engine.Start(ctx, in)
	if err != nil {
		logger.Error("confirm: start", zap.Error(err))
		return 1
	}
	res, err := console.NewDriver(os.Stdin, os.Stdout).Drive(ctx, r)
	if err != nil {
		logger.Error("confirm: run", zap.Error(err))
		return 1
	}
	fmt.Println(console.Summary(res))
	if res.Reason == workflow.ReasonEdit {
		fmt.Println("Correct the payee details in the form and run again.")
	}
	if res.Outcome != workflow.OutcomeSuccess {
		return 1
	}
	return 0
}
