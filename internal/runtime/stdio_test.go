package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/szaher/cppmcp/internal/rpc"
)

// syncBuffer guards a bytes.Buffer for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeStdio(t *testing.T) {
	d := newTestDispatcher(t, &fakeRunner{}, nil)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"compile_cpp","arguments":{"sourceCode":"int main(){}"}}}`,
		`not json`,
	}, "\n")
	var out syncBuffer

	if err := ServeStdio(context.Background(), d, strings.NewReader(in), &out, 0, nil); err != nil {
		t.Fatalf("ServeStdio() error: %v", err)
	}

	var ids []string
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var resp rpc.Response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			t.Fatalf("bad output line %q: %v", sc.Text(), err)
		}
		ids = append(ids, string(resp.ID))
		if string(resp.ID) == "null" && (resp.Error == nil || resp.Error.Code != rpc.CodeParseError) {
			t.Errorf("null-id response = %+v, want parse error", resp)
		}
	}
	sort.Strings(ids)
	if got := strings.Join(ids, ","); got != "1,2,3,null" {
		t.Errorf("response ids = %s, want 1,2,3,null", got)
	}
}

func TestServeStdioOversizedLine(t *testing.T) {
	d := newTestDispatcher(t, &fakeRunner{}, nil)
	in := `{"jsonrpc":"2.0","id":1,"method":"ping","pad":"` + strings.Repeat("x", 200) + `"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"
	var out syncBuffer

	if err := ServeStdio(context.Background(), d, strings.NewReader(in), &out, 100, nil); err != nil {
		t.Fatalf("ServeStdio() error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "exceeds size limit") {
		t.Errorf("output missing size error:\n%s", got)
	}
	if !strings.Contains(got, `"id":2`) {
		t.Errorf("output missing response to the following line:\n%s", got)
	}
}
