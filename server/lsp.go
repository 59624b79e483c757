package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/chainsaw/compiler"
	"github.com/chazu/chainsaw/driver"
	"github.com/chazu/chainsaw/vm"
)

const lspName = "chainsaw-lsp"

var lspLog = commonlog.GetLogger("chainsaw.lsp")

var keywordDocs = map[string]string{
	"true":   "Boolean literal.",
	"false":  "Boolean literal. `false` and `nil` are the only falsy values.",
	"nil":    "The absent value.",
	"IF":     "`IF cond THEN ... [ELSEIF cond THEN ...] [ELSE ...] END`",
	"THEN":   "Starts the body of an `IF` or `ELSEIF` branch.",
	"ELSE":   "Final branch of an `IF`.",
	"ELSEIF": "Additional conditional branch of an `IF`.",
	"WHILE":  "`WHILE cond DO ... END`",
	"DO":     "Starts the body of a `WHILE` loop.",
	"END":    "Closes an `IF` or `WHILE` block.",
	"ALLOC":  "Allocates an empty object on the heap. Suspends for a collection when the heap is full.",
}

// LspServer bridges LSP editor features to a runtime via RuntimeWorker.
// Globals and natives come from the hosted runtime; diagnostics compile
// each document against a scratch runtime so editing never binds globals.
type LspServer struct {
	worker *RuntimeWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server for the runtime behind d.
func NewLSP(d *driver.Driver) *LspServer {
	s := &LspServer{
		worker:  NewRuntimeWorker(d),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("chainsaw LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix, afterDot := extractPrefix(text, params.Position)
	if prefix == "" && !afterDot {
		return nil, nil
	}

	return s.worker.Do(context.Background(), func(d *driver.Driver) (any, error) {
		return complete(d.Runtime(), prefix, afterDot), nil
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(context.Background(), func(d *driver.Driver) (any, error) {
		return hover(d.Runtime(), word), nil
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	locs := definition(uri, text, word)
	if len(locs) == 0 {
		return nil, nil
	}
	return locs, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	return references(uri, text, word), nil
}

// --- Runtime-backed logic (called on worker goroutine) ---

func complete(rt *vm.Runtime, prefix string, afterDot bool) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	// After a dot only field names make sense.
	if afterDot {
		for _, name := range rt.FieldIDs() {
			add(name, "field", protocol.CompletionItemKindField)
		}
		return items
	}

	for _, kw := range compiler.Keywords() {
		add(kw, "keyword", protocol.CompletionItemKindKeyword)
	}

	for _, g := range rt.Globals() {
		if id, ok := g.Value.FunctionID(); ok {
			if def, ok := rt.Native(id); ok {
				add(g.Name, nativeSignature(def), protocol.CompletionItemKindFunction)
				continue
			}
		}
		add(g.Name, "global", protocol.CompletionItemKindVariable)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func hover(rt *vm.Runtime, word string) *protocol.Hover {
	var b strings.Builder

	if doc, ok := keywordDocs[word]; ok {
		fmt.Fprintf(&b, "**%s** (keyword)\n\n%s", word, doc)
		return markdown(b.String())
	}

	v, ok := rt.Global(word)
	if !ok {
		return nil
	}
	if id, ok := v.FunctionID(); ok {
		if def, ok := rt.Native(id); ok {
			fmt.Fprintf(&b, "**%s**\n\n`%s`", word, nativeSignature(def))
			return markdown(b.String())
		}
	}

	idx := rt.GlobalIndex(word)
	fmt.Fprintf(&b, "**%s** (global #%d)\n\n`%s`", word, idx, rt.FormatValue(v))
	return markdown(b.String())
}

func nativeSignature(def *vm.NativeDef) string {
	params := make([]string, def.Arity)
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	return fmt.Sprintf("native %s(%s)", def.Name, strings.Join(params, ", "))
}

func markdown(s string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s,
		},
	}
}

// --- Token-backed logic ---

// identifierTokens lexes text up to the first error and returns the
// identifiers spelled word, each paired with whether it is assigned.
func identifierTokens(text, word string) (toks []compiler.Token, assigned []bool) {
	lx := compiler.NewLexer(text)
	var prev compiler.Token
	havePrev := false
	for {
		tok, err := lx.NextToken()
		if err != nil || tok.Type == compiler.TokenEOF {
			break
		}
		if havePrev && prev.Type == compiler.TokenIdentifier && prev.Literal == word {
			toks = append(toks, prev)
			assigned = append(assigned, tok.Type == compiler.TokenEquals)
		}
		prev, havePrev = tok, true
	}
	if havePrev && prev.Type == compiler.TokenIdentifier && prev.Literal == word {
		toks = append(toks, prev)
		assigned = append(assigned, false)
	}
	return toks, assigned
}

// definition returns the first assignment to word in the document.
func definition(uri protocol.DocumentUri, text, word string) []protocol.Location {
	toks, assigned := identifierTokens(text, word)
	for i, tok := range toks {
		if assigned[i] {
			return []protocol.Location{{URI: uri, Range: tokenRange(tok)}}
		}
	}
	return nil
}

// references returns every occurrence of word as an identifier.
func references(uri protocol.DocumentUri, text, word string) []protocol.Location {
	toks, _ := identifierTokens(text, word)
	locs := make([]protocol.Location, 0, len(toks))
	for _, tok := range toks {
		locs = append(locs, protocol.Location{URI: uri, Range: tokenRange(tok)})
	}
	return locs
}

func lspPosition(p compiler.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(p.Line-1, 0)),
		Character: protocol.UInteger(p.Column),
	}
}

func tokenRange(tok compiler.Token) protocol.Range {
	return protocol.Range{Start: lspPosition(tok.Pos), End: lspPosition(tok.End())}
}

// --- Diagnostics ---

// diagnose compiles text against a scratch runtime and reports the first
// syntax error, if any.
func diagnose(text string) []protocol.Diagnostic {
	_, err := compiler.CompileSource(text, vm.NewRuntime())
	if err == nil {
		return []protocol.Diagnostic{}
	}

	rng := protocol.Range{}
	msg := err.Error()
	var se *compiler.SyntaxError
	if errors.As(err, &se) {
		end := se.Token.End()
		if se.Token.Pos != se.Pos || end.Column <= se.Pos.Column {
			end = compiler.Position{Line: se.Pos.Line, Column: se.Pos.Column + 1}
		}
		rng = protocol.Range{Start: lspPosition(se.Pos), End: lspPosition(end)}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	lspLog.Debugf("%s: %d diagnostics", uri, len(diagnostics))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor for
// completion, and whether that fragment directly follows a dot.
func extractPrefix(text string, pos protocol.Position) (string, bool) {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return "", false
	}

	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	afterDot := start > 0 && line[start-1] == '.'
	return line[start:col], afterDot
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentByte(line[end]) {
		end++
	}
	return line[start:end]
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))
	return line, col, true
}

func isIdentByte(c byte) bool {
	r := rune(c)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
