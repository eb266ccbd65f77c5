package common_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tiendafix/storeapi/common"
)

func TestEvents_EmitReachesAllSubscribers(t *testing.T) {
	bus := common.NewEvents()

	var got []string
	bus.Subscribe(common.SignalUnauthorized, func(msg string) { got = append(got, "a:"+msg) })
	bus.Subscribe(common.SignalUnauthorized, func(msg string) { got = append(got, "b:"+msg) })

	bus.Emit(common.SignalUnauthorized, "sesión expirada")

	assert.Equal(t, []string{"a:sesión expirada", "b:sesión expirada"}, got)
}

func TestEvents_SignalsAreIndependent(t *testing.T) {
	bus := common.NewEvents()

	calls := 0
	bus.Subscribe(common.SignalNetworkError, func(string) { calls++ })

	bus.Emit(common.SignalNetworkRecovered, "")
	assert.Equal(t, 0, calls)

	bus.Emit(common.SignalNetworkError, "")
	assert.Equal(t, 1, calls)
}
