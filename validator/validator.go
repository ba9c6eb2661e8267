package validator

import (
	"reflect"
	"sync"

	"github.com/NethermindEth/starknet-replay/clients/rpcstate"
	"github.com/NethermindEth/starknet-replay/core"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/go-playground/validator/v10"
)

var (
	once sync.Once
	v    *validator.Validate
)

func validateTimeouts(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := rpcstate.ParseTimeouts(value)
	return err == nil
}

func validateBlockID(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := rpcstate.ParseBlockID(value)
	return err == nil
}

func validateProtocolVersion(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := core.ParseBlockVersion(value)
	return err == nil
}

// Validator returns a singleton that can be used to validate various objects
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()

		for tag, fn := range map[string]validator.Func{
			"timeouts":         validateTimeouts,
			"block_id":         validateBlockID,
			"protocol_version": validateProtocolVersion,
		} {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic("failed to register validation: " + err.Error())
			}
		}

		// Register these types to use their string representation for validation
		// purposes
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			switch f := field.Interface().(type) {
			case felt.Felt:
				return f.String()
			case *felt.Felt:
				return f.String()
			}
			panic("not a felt")
		}, felt.Felt{}, &felt.Felt{})
	})
	return v
}
