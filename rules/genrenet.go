//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
// They keep the service code on the shared logging, error and HTTP client
// infrastructure.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the old sync.WaitGroup pattern and suggests using wg.Go().
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    doSomething()
//	}()
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")
}

// StdLogger flags the standard library logger. Service code logs through
// internal/logger so that module levels and trace IDs apply.
func StdLogger(m dsl.Matcher) {
	m.Import("log")

	m.Match(`log.Printf($*_)`, `log.Println($*_)`, `log.Print($*_)`,
		`log.Fatalf($*_)`, `log.Fatal($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`) && !m.File().PkgPath.Matches(`/cmd`)).
		Report("use the package GetLogger() with typed fields instead of the standard logger")
}

// BareHTTPClient flags outbound requests that bypass internal/httpclient and
// with it the default timeout and token handling.
func BareHTTPClient(m dsl.Matcher) {
	m.Import("net/http")

	m.Match(`http.Get($*_)`, `http.Post($*_)`, `http.DefaultClient.Do($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/httpclient for outbound requests")
}

// MagicTimeFormat suggests the named layout constants.
func MagicTimeFormat(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02T15:04:05Z07:00")`).
		Report(`use $t.Format(time.RFC3339) instead of magic format string`).
		Suggest(`$t.Format(time.RFC3339)`)

	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime) instead of magic format string (Go 1.20+)`).
		Suggest(`$t.Format(time.DateTime)`)
}
