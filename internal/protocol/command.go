package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rickgao/stockwatch/internal/model"
)

// Client command verbs.
const (
	CmdLogin    = "LOGIN"
	CmdRegister = "REGISTER"
	CmdAdd      = "ADD"
	CmdDel      = "DEL"
	CmdPrice    = "PRICE"
	CmdBuy      = "BUY"
	CmdSell     = "SELL"
	CmdData     = "DATA"
)

// Parse errors. All wrap ErrMalformed so callers can treat every parse
// failure uniformly as a protocol error.
var (
	ErrMalformed      = errors.New("malformed command")
	ErrEmptyLine      = fmt.Errorf("%w: empty line", ErrMalformed)
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrMalformed)
)

// Command is one parsed client request line.
type Command interface {
	// Verb returns the wire verb that produced this command.
	Verb() string
}

// Login authenticates an existing user.
type Login struct {
	Username string
	Password string
}

func (Login) Verb() string { return CmdLogin }

// Register creates a new user and authenticates the session as it.
type Register struct {
	Username string
	Password string
}

func (Register) Verb() string { return CmdRegister }

// AddAlert creates (or replaces) an alert on a symbol.
type AddAlert struct {
	Symbol    string
	Direction model.Direction
	Threshold float64
}

func (AddAlert) Verb() string { return CmdAdd }

// DelAlert removes an alert. When HasDirection is false all of the
// symbol's alerts for the user are removed.
type DelAlert struct {
	Symbol       string
	Direction    model.Direction
	HasDirection bool
}

func (DelAlert) Verb() string { return CmdDel }

// CheckPrice asks for the current price of a symbol.
type CheckPrice struct {
	Symbol string
}

func (CheckPrice) Verb() string { return CmdPrice }

// Buy adds qty shares at the current price to the user's position.
type Buy struct {
	Symbol   string
	Quantity int64
}

func (Buy) Verb() string { return CmdBuy }

// Sell removes qty shares at the current price from the user's position.
type Sell struct {
	Symbol   string
	Quantity int64
}

func (Sell) Verb() string { return CmdSell }

// GetData asks for the user's full alerts + positions snapshot.
type GetData struct{}

func (GetData) Verb() string { return CmdData }

// ParseCommand parses one client line into a Command. It performs no I/O;
// tokens are split on ASCII whitespace and the trailing newline (if any)
// is ignored.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyLine
	}

	verb, args := fields[0], fields[1:]

	switch verb {
	case CmdLogin:
		if len(args) != 2 {
			return nil, argErr(verb, "expected: LOGIN user pass")
		}
		return Login{Username: args[0], Password: args[1]}, nil

	case CmdRegister:
		if len(args) != 2 {
			return nil, argErr(verb, "expected: REGISTER user pass")
		}
		return Register{Username: args[0], Password: args[1]}, nil

	case CmdAdd:
		if len(args) != 3 {
			return nil, argErr(verb, "expected: ADD symbol direction threshold")
		}
		dir, ok := model.ParseDirection(args[1])
		if !ok {
			return nil, argErr(verb, "direction must be Above or Below")
		}
		threshold, err := strconv.ParseFloat(args[2], 64)
		if err != nil || math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
			return nil, argErr(verb, "threshold must be a positive number")
		}
		return AddAlert{Symbol: args[0], Direction: dir, Threshold: threshold}, nil

	case CmdDel:
		switch len(args) {
		case 1:
			return DelAlert{Symbol: args[0]}, nil
		case 2:
			dir, ok := model.ParseDirection(args[1])
			if !ok {
				return nil, argErr(verb, "direction must be Above or Below")
			}
			return DelAlert{Symbol: args[0], Direction: dir, HasDirection: true}, nil
		default:
			return nil, argErr(verb, "expected: DEL symbol [direction]")
		}

	case CmdPrice:
		if len(args) != 1 {
			return nil, argErr(verb, "expected: PRICE symbol")
		}
		return CheckPrice{Symbol: args[0]}, nil

	case CmdBuy:
		qty, err := parseQuantity(args)
		if err != nil {
			return nil, argErr(verb, err.Error())
		}
		return Buy{Symbol: args[0], Quantity: qty}, nil

	case CmdSell:
		qty, err := parseQuantity(args)
		if err != nil {
			return nil, argErr(verb, err.Error())
		}
		return Sell{Symbol: args[0], Quantity: qty}, nil

	case CmdData:
		if len(args) != 0 {
			return nil, argErr(verb, "expected: DATA")
		}
		return GetData{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}

func parseQuantity(args []string) (int64, error) {
	if len(args) != 2 {
		return 0, errors.New("expected: symbol qty")
	}
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || qty <= 0 {
		return 0, errors.New("qty must be a positive integer")
	}
	return qty, nil
}

func argErr(verb, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, verb, detail)
}
