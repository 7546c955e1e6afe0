package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/tools"
)

const (
	seedSize     = 32
	bytesPerRoll = 2
	maxRolls     = seedSize / bytesPerRoll
)

// DiceRequest is one "<count>d<sides>" term.
type DiceRequest struct {
	Count int
	Sides int
	Term  string
}

// DiceResult holds the rolls for one request.
type DiceResult struct {
	Request string `json:"request"`
	Rolls   []int  `json:"rolls"`
}

// ParseDice parses a comma-separated list of dice terms such as "1d6,2d10".
// Empty terms are ignored.
func ParseDice(s string) ([]DiceRequest, error) {
	var out []DiceRequest
	for _, raw := range strings.Split(s, ",") {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}

		parts := strings.Split(strings.ToLower(term), "d")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid dice string format: '%s'. Expected format like '1d6'", term)
		}

		count, errCount := strconv.Atoi(parts[0])
		sides, errSides := strconv.Atoi(parts[1])
		if errCount != nil || errSides != nil || count <= 0 || sides <= 0 {
			return nil, fmt.Errorf("invalid dice string format: '%s'. Count and sides must be positive numbers", term)
		}

		out = append(out, DiceRequest{Count: count, Sides: sides, Term: term})
	}
	return out, nil
}

// Roll derives each roll from two bytes of seed: (hi<<8 | lo) % sides + 1.
func Roll(requests []DiceRequest, seed []byte) ([]DiceResult, error) {
	results := make([]DiceResult, 0, len(requests))
	offset := 0

	for _, req := range requests {
		if req.Count > (len(seed)-offset)/bytesPerRoll {
			return nil, errors.New("ran out of random bytes")
		}
		rolls := make([]int, 0, req.Count)
		for range req.Count {
			value := int(seed[offset])<<8 | int(seed[offset+1])
			rolls = append(rolls, value%req.Sides+1)
			offset += bytesPerRoll
		}
		results = append(results, DiceResult{Request: req.Term, Rolls: rolls})
	}

	return results, nil
}

// RollDice rolls dice from a 32-byte seed read from random, reporting
// progress to the caller through the notifier.
func RollDice(random io.Reader) tools.Unit {
	return tools.Unit{
		Tool: &protocol.Tool{
			Name: "roll_dice",
			Description: "Rolls dice. Provide dice requests as a comma-separated string (e.g., '1d6,2d10'). " +
				"Each roll uses two bytes of a freshly generated 32-byte random seed.",
			Parameters: protocol.ObjectSchema(map[string]any{
				"dice_requests": protocol.StringProperty(
					"A comma-separated string of dice to roll, e.g., '1d6,2d10,3d4'. Max 16 individual rolls per command."),
			}, "dice_requests"),
		},
		Handler: func(ctx context.Context, call tools.Call) (tools.Result, error) {
			var args struct {
				DiceRequests string `json:"dice_requests"`
			}
			if err := call.Bind(&args); err != nil {
				return tools.Result{}, err
			}

			progress := func(text string) {
				if call.Notifier != nil && call.Recipient != "" {
					_ = call.Notifier.SendText(ctx, call.Recipient, text)
				}
			}

			if strings.TrimSpace(args.DiceRequests) == "" {
				progress("⚠️ I need to know what dice to roll! For example, tell me 'roll 1d6' or 'roll 2d10 and 1d4'.")
				return tools.Fail("the 'dice_requests' parameter was not provided"), nil
			}

			requests, err := ParseDice(args.DiceRequests)
			if err != nil {
				progress("⚠️ " + err.Error())
				return tools.Fail("%s", err.Error()), nil
			}
			if len(requests) == 0 {
				msg := "No valid dice requests found after parsing your input. Example: `1d6,2d10`"
				progress(msg)
				return tools.Fail("%s", msg), nil
			}

			total := 0
			terms := make([]string, len(requests))
			for i, r := range requests {
				terms[i] = r.Term
				if total <= maxRolls {
					total = addRolls(total, r.Count)
				}
			}
			progress(fmt.Sprintf("🎲 Parsed requests: %s. Total individual rolls: %d.", strings.Join(terms, ", "), total))

			if total > maxRolls {
				msg := fmt.Sprintf("Too many dice rolls requested (%d). Max %d individual rolls allowed per command.", total, maxRolls)
				progress("⚠️ " + msg)
				return tools.Fail("%s", msg), nil
			}

			seed := make([]byte, seedSize)
			if _, err := io.ReadFull(random, seed); err != nil {
				return tools.Result{}, fmt.Errorf("generate random seed: %w", err)
			}

			results, err := Roll(requests, seed)
			if err != nil {
				return tools.Result{}, err
			}

			var b strings.Builder
			b.WriteString("🎉 Dice Roll Results:\n")
			for _, r := range results {
				fmt.Fprintf(&b, "   %s: %s\n", r.Request, joinInts(r.Rolls))
			}
			text := b.String()
			progress(text)

			return tools.OK(map[string]any{"results": results, "text": text}), nil
		},
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// addRolls sums roll counts, saturating at math.MaxInt.
func addRolls(total, count int) int {
	if count > math.MaxInt-total {
		return math.MaxInt
	}
	return total + count
}
