package accesskey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var verbs = []string{
	"accept", "adapt", "admire", "advance", "answer", "arrive", "bake", "balance",
	"bang", "bathe", "battle", "beam", "beg", "bless", "blink", "bloom", "boast",
	"bounce", "breathe", "bring", "build", "burn", "bury", "calculate", "call",
	"carve", "carry", "catch", "chant", "charge", "chase", "cheer", "chew", "claim",
	"clap", "climb", "coil", "collect", "command", "crawl", "cross", "dance",
	"dare", "decide", "deliver", "dig", "dive", "drag", "dream", "drift", "drum",
	"dust", "earn", "echo", "escape", "explore", "fade", "fetch", "fight", "find",
	"float", "fly", "fold", "follow", "forge", "gather", "glide", "glow", "grab",
	"greet", "grow", "guard", "guide", "hammer", "harvest", "hover", "hunt",
	"hurry", "jump", "kick", "kneel", "knit", "land", "laugh", "launch", "lead",
	"leap", "lift", "march", "mend", "mix", "paddle", "paint", "parade", "pounce",
	"pull", "push", "race", "raid", "reach", "rescue", "ride", "roam", "roar",
	"row", "run", "rush", "sail", "scout", "seek", "shine", "shout", "sing",
	"skate", "slide", "smile", "soar", "spin", "splash", "sprint", "stomp",
	"storm", "swim", "swing", "tackle", "throw", "trace", "travel", "tumble",
	"vanish", "wander", "watch", "wave", "whistle", "wink", "wrestle", "yell",
}

var adjectives = []string{
	"able", "agile", "amber", "ancient", "azure", "bold", "brave", "bright",
	"brisk", "bronze", "calm", "candid", "clever", "cosmic", "crimson", "crisp",
	"curious", "daring", "dapper", "distant", "eager", "early", "electric",
	"emerald", "epic", "fabled", "fair", "fancy", "fearless", "fierce", "fiery",
	"floral", "fluffy", "frosty", "gentle", "giant", "gilded", "glad", "golden",
	"grand", "hardy", "hidden", "honest", "humble", "icy", "jolly", "keen",
	"kind", "lively", "lone", "loyal", "lucky", "lunar", "magic", "merry",
	"mighty", "misty", "modest", "mossy", "noble", "nimble", "odd", "olive",
	"patient", "plucky", "polar", "proud", "quick", "quiet", "rapid", "rare",
	"rugged", "rusty", "scarlet", "shady", "sharp", "shiny", "silent", "silver",
	"sleepy", "slick", "smooth", "snowy", "solar", "sparkly", "speedy", "spiky",
	"stark", "steady", "stormy", "stout", "sturdy", "sunny", "swift", "tidy",
	"tiny", "tough", "tranquil", "true", "vast", "velvet", "vivid", "wandering",
	"warm", "wild", "windy", "wise", "witty", "young", "zany", "zealous",
}

var nouns = []string{
	"acorn", "anchor", "anvil", "arrow", "aspen", "badger", "banner", "beacon",
	"bear", "beetle", "boulder", "bramble", "breeze", "brook", "candle", "canyon",
	"castle", "cedar", "cliff", "cloud", "comet", "coral", "crane", "crow",
	"crystal", "dagger", "dragon", "eagle", "ember", "falcon", "feather", "fern",
	"flame", "forest", "fox", "galaxy", "garden", "geyser", "glacier", "goblin",
	"griffin", "harbor", "hawk", "hedgehog", "heron", "hill", "horizon", "island",
	"jaguar", "kettle", "lantern", "lark", "lion", "lotus", "lynx", "maple",
	"meadow", "meteor", "moose", "mountain", "nebula", "oak", "ocean", "orchid",
	"otter", "owl", "panther", "pebble", "phoenix", "pine", "planet", "pony",
	"quartz", "rabbit", "raven", "reef", "river", "robin", "rocket", "sage",
	"salmon", "shield", "sparrow", "spire", "spruce", "squirrel", "star",
	"stone", "summit", "sword", "thistle", "thunder", "tiger", "tower", "trout",
	"tulip", "valley", "viper", "walrus", "willow", "wizard", "wolf", "wren",
}

// WordGenerator builds secrets of the form VerbAdjectiveNoun
type WordGenerator struct{}

// Generate returns a new random secret
func (WordGenerator) Generate() (string, error) {
	var b strings.Builder
	for _, list := range [][]string{verbs, adjectives, nouns} {
		word, err := pick(list)
		if err != nil {
			return "", err
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	return b.String(), nil
}

func pick(list []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return "", fmt.Errorf("failed to read random: %w", err)
	}
	return list[n.Int64()], nil
}
