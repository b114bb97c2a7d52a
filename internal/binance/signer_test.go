package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_KnownVectors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		query  string
		want   string
	}{
		{
			name:   "binance api docs example",
			secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
			query:  "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559",
			want:   "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71",
		},
		{
			name:   "rfc 4231 case 2",
			secret: "Jefe",
			query:  "what do ya want for nothing?",
			want:   "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sign(tt.secret, tt.query))
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	first := Sign("secret", "timestamp=1700000000000")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Sign("secret", "timestamp=1700000000000"))
	}
	assert.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestSign_SingleCharacterChangesOutput(t *testing.T) {
	base := Sign("secret", "symbol=BTCUSDT&timestamp=1700000000000")

	assert.NotEqual(t, base, Sign("secreT", "symbol=BTCUSDT&timestamp=1700000000000"))
	assert.NotEqual(t, base, Sign("secret", "symbol=BTCUSDT&timestamp=1700000000001"))
	assert.NotEqual(t, base, Sign("secret", "symbol=ETHUSDT&timestamp=1700000000000"))
}
