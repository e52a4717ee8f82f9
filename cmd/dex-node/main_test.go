package main

import (
	"context"
	"testing"

	nodecfg "clobex.com/internal/config"
	"clobex.com/internal/engine"
	"clobex.com/internal/funds"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = 0x22
	return k
}

func testConfig() *nodecfg.Config {
	var c nodecfg.Config
	c.Server.Addr = "127.0.0.1:0"
	c.Markets = []nodecfg.MarketConfig{{
		ID:            key(1).String(),
		Name:          "SOL/USDC",
		BaseMint:      key(2).String(),
		QuoteMint:     key(3).String(),
		BaseDecimals:  9,
		QuoteDecimals: 6,
		BaseLotSize:   1_000,
		QuoteLotSize:  1,
	}}
	c.Escrow.Deposits = []nodecfg.Deposit{
		{Owner: key(9).String(), Mint: key(3).String(), Amount: 5_000},
		{Owner: key(9).String(), Mint: key(7).String(), Amount: 1}, // 别的市场的 mint，跳过
	}
	c.Indexer.Enabled = true
	return &c
}

func TestDeposits_FilterByMarketMints(t *testing.T) {
	n := &node{cfg: testConfig()}
	got, err := n.deposits(funds.Mints{Base: key(2), Quote: key(3)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, key(9), got[0].owner)
	assert.Equal(t, uint64(5_000), got[0].amount)

	n.cfg.Escrow.Deposits[0].Owner = "not-base58"
	_, err = n.deposits(funds.Mints{Base: key(2), Quote: key(3)})
	assert.Error(t, err)
}

func TestBuild_MemoryStack(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	n, err := build(context.Background(), cfg)
	require.NoError(t, err)
	defer n.close()

	require.NotNil(t, n.indexer)
	require.NotNil(t, n.broker)
	assert.Equal(t, []solana.PublicKey{key(1)}, n.eng.Markets())

	// 市场已经在跑，能开户
	ctx := context.Background()
	_, err = n.eng.Submit(ctx, engine.Command{Type: engine.CmdInitOpenOrders, Market: key(1), Signer: key(9), Owner: key(9)})
	require.NoError(t, err)
}

func TestBuild_BadMarket(t *testing.T) {
	cfg := testConfig()
	cfg.Markets[0].QuoteMint = cfg.Markets[0].BaseMint
	_, err := build(context.Background(), cfg)
	assert.Error(t, err)
}
