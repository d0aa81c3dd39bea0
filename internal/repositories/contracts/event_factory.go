package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventMapper converts a raw log into a typed event, nil event means the log is not of interest
type EventMapper func(types.Log) (interface{}, error)

type TaskCreatedEvent struct {
	TaskId  *big.Int
	Creator common.Address
	Reward  *big.Int
	Raw     types.Log
}

type TaskCompletedEvent struct {
	TaskId    *big.Int
	Completer common.Address
	Reward    *big.Int
	Raw       types.Log
}

func taskManagerEventFactory(name string) interface{} {
	switch name {
	case "TaskCreated":
		return new(TaskCreatedEvent)
	case "TaskCompleted":
		return new(TaskCompletedEvent)
	default:
		return nil
	}
}

func CreateEventMapper(eventFactory func(name string) interface{}, contractABI *abi.ABI) EventMapper {
	return func(log types.Log) (interface{}, error) {
		if len(log.Topics) == 0 {
			return nil, nil
		}
		namedEvent, err := contractABI.EventByID(log.Topics[0])
		if err != nil {
			return nil, nil
		}
		event := eventFactory(namedEvent.Name)
		if event == nil {
			return nil, nil
		}
		if err := unpackLog(contractABI, event, namedEvent.Name, log); err != nil {
			return nil, fmt.Errorf("cannot decode %s log: %w", namedEvent.Name, err)
		}
		return event, nil
	}
}

func unpackLog(contractABI *abi.ABI, out interface{}, eventName string, log types.Log) error {
	if len(log.Data) > 0 {
		if err := contractABI.UnpackIntoInterface(out, eventName, log.Data); err != nil {
			return err
		}
	}

	var indexed abi.Arguments
	for _, arg := range contractABI.Events[eventName].Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
		return err
	}

	switch ev := out.(type) {
	case *TaskCreatedEvent:
		ev.Raw = log
	case *TaskCompletedEvent:
		ev.Raw = log
	}
	return nil
}
