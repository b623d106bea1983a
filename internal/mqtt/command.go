package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command topics the helper subscribes to.
const (
	TopicTare       = "hydration-helper/tare"
	TopicBrightness = "hydration-helper/brightness"
	TopicPattern    = "hydration-helper/pattern"
)

// CommandTopics lists every topic carrying remote commands.
var CommandTopics = []string{TopicTare, TopicBrightness, TopicPattern}

// ErrUnknownTopic is returned by ParseCommand for topics that carry no command.
var ErrUnknownTopic = errors.New("unknown command topic")

// CommandKind identifies a remote command.
type CommandKind string

const (
	CommandTare       CommandKind = "TARE"
	CommandBrightness CommandKind = "BRIGHTNESS"
	CommandPattern    CommandKind = "PATTERN"
)

// Command is a parsed remote command.
type Command struct {
	Kind       CommandKind
	Value      string // trimmed payload
	Brightness uint8  // BRIGHTNESS only
}

// ParseCommand parses a message received on one of CommandTopics.
func ParseCommand(topic string, payload []byte) (Command, error) {
	value := strings.TrimSpace(string(payload))

	switch topic {
	case TopicTare:
		return Command{Kind: CommandTare, Value: value}, nil
	case TopicBrightness:
		n, err := strconv.Atoi(value)
		if err != nil {
			return Command{}, fmt.Errorf("parse brightness %q: %w", value, err)
		}
		if n < 0 || n > 255 {
			return Command{}, fmt.Errorf("brightness %d out of range 0-255", n)
		}
		return Command{Kind: CommandBrightness, Value: value, Brightness: uint8(n)}, nil
	case TopicPattern:
		if value == "" {
			return Command{}, errors.New("empty pattern name")
		}
		return Command{Kind: CommandPattern, Value: strings.ToLower(value)}, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}
