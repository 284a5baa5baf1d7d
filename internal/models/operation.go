package models

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperation is an EntryPoint v0.6 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// userOperationJSON is the bundler RPC wire form.
type userOperationJSON struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func (op *UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(userOperationJSON{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(orZero(op.Nonce)),
		InitCode:             nonNil(op.InitCode),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         (*hexutil.Big)(orZero(op.CallGasLimit)),
		VerificationGasLimit: (*hexutil.Big)(orZero(op.VerificationGasLimit)),
		PreVerificationGas:   (*hexutil.Big)(orZero(op.PreVerificationGas)),
		MaxFeePerGas:         (*hexutil.Big)(orZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(orZero(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     nonNil(op.PaymasterAndData),
		Signature:            nonNil(op.Signature),
	})
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var dec userOperationJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               dec.Sender,
		Nonce:                (*big.Int)(dec.Nonce),
		InitCode:             dec.InitCode,
		CallData:             dec.CallData,
		CallGasLimit:         (*big.Int)(dec.CallGasLimit),
		VerificationGasLimit: (*big.Int)(dec.VerificationGasLimit),
		PreVerificationGas:   (*big.Int)(dec.PreVerificationGas),
		MaxFeePerGas:         (*big.Int)(dec.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(dec.MaxPriorityFeePerGas),
		PaymasterAndData:     dec.PaymasterAndData,
		Signature:            dec.Signature,
	}
	return nil
}

// Copy returns a deep copy of the operation.
func (op *UserOperation) Copy() *UserOperation {
	return &UserOperation{
		Sender:               op.Sender,
		Nonce:                copyBig(op.Nonce),
		InitCode:             common.CopyBytes(op.InitCode),
		CallData:             common.CopyBytes(op.CallData),
		CallGasLimit:         copyBig(op.CallGasLimit),
		VerificationGasLimit: copyBig(op.VerificationGasLimit),
		PreVerificationGas:   copyBig(op.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     common.CopyBytes(op.PaymasterAndData),
		Signature:            common.CopyBytes(op.Signature),
	}
}

// Call is a single (target, value, data) tuple executed by the account.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func nonNil(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
