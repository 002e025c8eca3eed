package identity

import (
	"os"
	"regexp"
	"strconv"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	start := time.Unix(1700000000, 0)
	a := format("host", 42, "key-a", start)
	if !regexp.MustCompile(`^host-42-[0-9a-f]{8}$`).MatchString(a) {
		t.Fatalf("unexpected identity %q", a)
	}
	if a != format("host", 42, "key-a", start) {
		t.Fatal("identity must be deterministic")
	}
	if a == format("host", 42, "key-b", start) {
		t.Fatal("different keys should give different suffixes")
	}
	if a == format("host", 42, "key-a", start.Add(time.Second)) {
		t.Fatal("different start times should give different suffixes")
	}
}

func TestWorker(t *testing.T) {
	id := Worker("pem")
	pid := strconv.Itoa(os.Getpid())
	if !regexp.MustCompile(`-` + pid + `-[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("identity %q does not end with pid and hash", id)
	}
}
