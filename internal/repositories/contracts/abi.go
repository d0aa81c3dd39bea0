package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

const taskManagerABI = `[
	{"type":"function","name":"createTask","stateMutability":"nonpayable",
	 "inputs":[{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"reward","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"completeTask","stateMutability":"nonpayable",
	 "inputs":[{"name":"taskId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"taskCounter","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tasks","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[
		{"name":"id","type":"uint256"},
		{"name":"title","type":"string"},
		{"name":"description","type":"string"},
		{"name":"reward","type":"uint256"},
		{"name":"creator","type":"address"},
		{"name":"completer","type":"address"},
		{"name":"isCompleted","type":"bool"}]},
	{"type":"event","name":"TaskCreated","anonymous":false,
	 "inputs":[
		{"name":"taskId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"reward","type":"uint256","indexed":false}]},
	{"type":"event","name":"TaskCompleted","anonymous":false,
	 "inputs":[
		{"name":"taskId","type":"uint256","indexed":true},
		{"name":"completer","type":"address","indexed":true},
		{"name":"reward","type":"uint256","indexed":false}]}
]`

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Approval","anonymous":false,
	 "inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"spender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

var TaskManagerMetaData = &bind.MetaData{
	ABI: taskManagerABI,
}

var ERC20MetaData = &bind.MetaData{
	ABI: erc20ABI,
}
