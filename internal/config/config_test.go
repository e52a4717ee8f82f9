package config

import (
	"testing"

	"clobex.com/internal/engine"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) string {
	var k solana.PublicKey
	k[0] = b
	k[31] = 0x11
	return k.String()
}

func validConfig() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Markets = []MarketConfig{{
		ID:            key(1),
		Name:          "SOL/USDC",
		BaseMint:      key(2),
		QuoteMint:     key(3),
		BaseDecimals:  9,
		QuoteDecimals: 6,
		BaseLotSize:   1_000_000,
		QuoteLotSize:  1,
		MinOrderSize:  1_000_000,
	}}
	return c
}

func TestMarketConfig_Market(t *testing.T) {
	c := validConfig()
	id, cfg, meta, err := c.Markets[0].Market()
	require.NoError(t, err)
	assert.Equal(t, key(1), id.String())
	assert.Equal(t, key(2), cfg.BaseMint.String())
	assert.True(t, cfg.Admin.IsZero())
	assert.Equal(t, "SOL/USDC", meta.Name)
	assert.Equal(t, int32(9), meta.BaseDecimals)

	bad := c.Markets[0]
	bad.QuoteMint = bad.BaseMint
	_, _, _, err = bad.Market()
	assert.Error(t, err)

	bad = c.Markets[0]
	bad.Admin = "###"
	_, _, _, err = bad.Market()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())

	c.Markets = append(c.Markets, c.Markets[0])
	c.Engine.EnableWAL = true
	c.Engine.Codec = "xml"
	c.Escrow.Driver = "redis"
	c.Indexer.Store.Driver = "pg"
	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"configured twice", "walDir", "xml", "redis.addr", "pg"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestEngineConfig_Codec(t *testing.T) {
	ec, err := EngineConfig{Codec: "json"}.Engine()
	require.NoError(t, err)
	assert.IsType(t, engine.JSONCmdCodec{}, ec.Codec)
	ec, err = EngineConfig{}.Engine()
	require.NoError(t, err)
	assert.IsType(t, engine.BinaryCmdCodec{}, ec.Codec)
}
