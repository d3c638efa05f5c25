package contractclient

import (
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func ethereumCallMsg(from *common.Address, to *common.Address, data []byte) ethereum.CallMsg {
	msg := ethereum.CallMsg{To: to, Data: data}
	if from != nil {
		msg.From = *from
	}
	return msg
}
