// Package builtin provides the tool units shipped with the bot.
package builtin

import (
	"crypto/rand"

	"github.com/tailored-agentic-units/chainspeak/store"
	"github.com/tailored-agentic-units/chainspeak/tools"
)

// Units returns every builtin tool in registration order.
func Units(s *store.Store) []tools.Unit {
	return []tools.Unit{
		EchoText(),
		GetConfig(s),
		WriteConfig(s),
		RollDice(rand.Reader),
		SendTextCard(),
	}
}
