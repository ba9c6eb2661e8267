package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/holiman/uint256"
)

var ErrUnknownTransactionType = errors.New("unknown transaction type")

type Type uint8

const (
	Invalid Type = iota
	TxnDeclare
	TxnDeployAccount
	TxnInvoke
	TxnL1Handler
)

func (t Type) String() string {
	switch t {
	case TxnDeclare:
		return "DECLARE"
	case TxnDeployAccount:
		return "DEPLOY_ACCOUNT"
	case TxnInvoke:
		return "INVOKE"
	case TxnL1Handler:
		return "L1_HANDLER"
	default:
		return "<unknown>"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	switch string(text) {
	case "DECLARE":
		*t = TxnDeclare
	case "DEPLOY_ACCOUNT":
		*t = TxnDeployAccount
	case "INVOKE", "INVOKE_FUNCTION":
		*t = TxnInvoke
	case "L1_HANDLER":
		*t = TxnL1Handler
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransactionType, text)
	}
	return nil
}

type Transaction interface {
	Hash() felt.Felt
	Type() Type
}

// ResourceBounds caps the amount and unit price of one resource a version 3
// transaction may consume.
type ResourceBounds struct {
	MaxAmount       felt.Felt `json:"max_amount"`
	MaxPricePerUnit felt.Felt `json:"max_price_per_unit"`
}

type ResourceBoundsMapping struct {
	L1Gas ResourceBounds `json:"l1_gas"`
	L2Gas ResourceBounds `json:"l2_gas"`
}

// AccountFields are shared by every transaction sent from an account.
type AccountFields struct {
	TransactionHash felt.Felt              `json:"transaction_hash"`
	Version         felt.Felt              `json:"version"`
	Signature       []felt.Felt            `json:"signature"`
	Nonce           felt.Felt              `json:"nonce"`
	MaxFee          felt.Felt              `json:"max_fee"`
	ResourceBounds  *ResourceBoundsMapping `json:"resource_bounds,omitempty"`
}

func (f *AccountFields) Hash() felt.Felt {
	return f.TransactionHash
}

var version3 = felt.FromUint64(3)

// MaxFeeAmount is the most the account agreed to pay: max_fee before version 3
// and max_amount * max_price_per_unit of the L1 gas bounds from version 3.
func (f *AccountFields) MaxFeeAmount() *uint256.Int {
	if f.Version.Cmp(&version3) >= 0 && f.ResourceBounds != nil {
		l1Gas := &f.ResourceBounds.L1Gas
		price := core.FeltToU256(&l1Gas.MaxPricePerUnit)
		return price.Mul(price, core.FeltToU256(&l1Gas.MaxAmount))
	}
	return core.FeltToU256(&f.MaxFee)
}

// Invoke calls __execute__ of SenderAddress with Calldata.
type Invoke struct {
	AccountFields
	SenderAddress felt.Felt   `json:"sender_address"`
	Calldata      []felt.Felt `json:"calldata"`
}

func (*Invoke) Type() Type { return TxnInvoke }

// DeployAccount deploys an account contract at the address derived from
// ClassHash, ContractAddressSalt and ConstructorCalldata and validates the
// deployment with the new account itself.
type DeployAccount struct {
	AccountFields
	ClassHash           felt.Felt   `json:"class_hash"`
	ContractAddressSalt felt.Felt   `json:"contract_address_salt"`
	ConstructorCalldata []felt.Felt `json:"constructor_calldata"`
}

func (*DeployAccount) Type() Type { return TxnDeployAccount }

// ContractAddress is the address the account is deployed at. The deployer
// is always zero.
func (tx *DeployAccount) ContractAddress() felt.Felt {
	return core.ContractAddress(&felt.Zero, &tx.ClassHash, &tx.ContractAddressSalt, tx.ConstructorCalldata)
}

// Declare registers Class under ClassHash.
type Declare struct {
	AccountFields
	SenderAddress     felt.Felt           `json:"sender_address"`
	ClassHash         felt.Felt           `json:"class_hash"`
	CompiledClassHash felt.Felt           `json:"compiled_class_hash"`
	Class             *core.ContractClass `json:"contract_class"`
}

func (*Declare) Type() Type { return TxnDeclare }

// L1Handler runs a message sent from L1. The first calldata felt is the L1
// sender.
type L1Handler struct {
	TransactionHash    felt.Felt   `json:"transaction_hash"`
	Version            felt.Felt   `json:"version"`
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
	Nonce              felt.Felt   `json:"nonce"`
	PaidFeeOnL1        felt.Felt   `json:"paid_fee_on_l1"`
}

func (tx *L1Handler) Hash() felt.Felt { return tx.TransactionHash }
func (*L1Handler) Type() Type         { return TxnL1Handler }

// Unmarshal decodes a transaction, picking its kind from the "type" field.
func Unmarshal(data []byte) (Transaction, error) {
	var envelope struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	var tx Transaction
	switch envelope.Type {
	case TxnInvoke:
		tx = new(Invoke)
	case TxnDeployAccount:
		tx = new(DeployAccount)
	case TxnDeclare:
		tx = new(Declare)
	case TxnL1Handler:
		tx = new(L1Handler)
	default:
		return nil, ErrUnknownTransactionType
	}
	if err := json.Unmarshal(data, tx); err != nil {
		return nil, fmt.Errorf("decode %s transaction: %w", envelope.Type, err)
	}
	return tx, nil
}

// Marshal encodes tx with its "type" field so that Unmarshal can decode it.
func Marshal(tx Transaction) ([]byte, error) {
	fields, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	var object map[string]json.RawMessage
	if err = json.Unmarshal(fields, &object); err != nil {
		return nil, err
	}
	if object["type"], err = json.Marshal(tx.Type()); err != nil {
		return nil, err
	}
	return json.Marshal(object)
}

// Envelope is a Transaction that can be embedded in JSON documents.
type Envelope struct {
	Transaction
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return Marshal(e.Transaction)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	tx, err := Unmarshal(data)
	if err != nil {
		return err
	}
	e.Transaction = tx
	return nil
}
