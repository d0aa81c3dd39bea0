package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

func mustParseABI(meta *bind.MetaData) *abi.ABI {
	parsed, err := meta.GetAbi()
	if err != nil {
		panic("invalid contract ABI: " + err.Error())
	}
	return parsed
}
