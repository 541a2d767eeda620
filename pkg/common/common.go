package common

import (
	"os"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

func initNode() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a snowflake id as int64.
func UUIDint64() int64 {
	snowflakeOnce.Do(initNode)
	return snowflakeNode.Generate().Int64()
}

// UUID returns a snowflake id rendered in base36; entity identities are
// opaque strings everywhere above the store layer.
func UUID() string {
	snowflakeOnce.Do(initNode)
	return strings.ToLower(snowflakeNode.Generate().Base36())
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MustMkdir creates dir and all parents, panicking on failure.
func MustMkdir(path string) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		panic(err)
	}
}

// TrimPhone normalizes a phone number to its canonical form: digits with an
// optional leading plus.
func TrimPhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
