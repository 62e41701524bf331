package fraud

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlertSet(t *testing.T) {
	var none AlertSet
	assert.True(t, none.Empty())
	assert.Nil(t, none.Acknowledge())
	assert.Nil(t, none.Clone())
	assert.Empty(t, none.Codes())

	s := AlertSet{AlertVelocity: "unusual amount", AlertHighRiskCountry: "watch list"}
	assert.False(t, s.Empty())
	assert.Equal(t, []string{AlertHighRiskCountry, AlertVelocity}, s.Codes())
	assert.Equal(t, map[string]bool{AlertVelocity: true, AlertHighRiskCountry: true}, s.Acknowledge())

	c := s.Clone()
	c[AlertNewPayee] = "x"
	assert.Len(t, s, 2)
}
