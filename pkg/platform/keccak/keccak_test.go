package keccak

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum256KnownVectors(t *testing.T) {
	empty := Sum256()
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hex.EncodeToString(empty[:]))
}

func TestSelector(t *testing.T) {
	sel := Selector("totalSupply()")
	assert.Equal(t, "18160ddd", hex.EncodeToString(sel[:]))

	sel = Selector("transfer(address,uint256)")
	assert.Equal(t, "a9059cbb", hex.EncodeToString(sel[:]))
}

func TestTopic(t *testing.T) {
	topic := Topic("Transfer(address,address,uint256)")
	assert.Equal(t, "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", hex.EncodeToString(topic[:]))
}
