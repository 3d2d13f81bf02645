package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerTradeID_OrderInsensitive(t *testing.T) {
	a := BrokerTradeID([]string{"f1", "f2", "f3"})
	b := BrokerTradeID([]string{"f3", "f1", "f2"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestBrokerTradeID_DuplicateInsensitive(t *testing.T) {
	a := BrokerTradeID([]string{"f1", "f2"})
	b := BrokerTradeID([]string{"f1", "f2", "f2"})
	assert.Equal(t, a, b)
}

func TestBrokerTradeID_DifferentSetsDiffer(t *testing.T) {
	a := BrokerTradeID([]string{"f1", "f2"})
	b := BrokerTradeID([]string{"f1", "f3"})
	assert.NotEqual(t, a, b)
}

func TestBrokerTradeID_NotAmbiguousAcrossBoundaries(t *testing.T) {
	// Joining with a separator keeps {"ab","c"} distinct from {"a","bc"}.
	a := BrokerTradeID([]string{"ab", "c"})
	b := BrokerTradeID([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
}
