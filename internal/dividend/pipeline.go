package dividend

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/divimport/internal/logging"
	"github.com/google/uuid"
)

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	Layout        *Layout
	MinColumns    int
	MaxFileSize   int64
	MaxConcurrent int
	MaxWait       time.Duration
}

// Pipeline runs previews and confirms against one set of collaborators.
type Pipeline struct {
	layout      *Layout
	parser      *Parser
	resolver    *Resolver
	duplicates  *DuplicateDetector
	importer    *Importer
	ledger      Ledger
	limiter     *Limiter
	maxFileSize int64
}

// New wires a pipeline. It fails only when the embedded layout is unusable.
func New(companies CompanyDirectory, brokers BrokerDirectory, ledger Ledger, opts Options) (*Pipeline, error) {
	layout := opts.Layout
	if layout == nil {
		var err error
		layout, err = DefaultLayout()
		if err != nil {
			return nil, err
		}
	}
	return &Pipeline{
		layout:      layout,
		parser:      NewParser(layout, opts.MinColumns),
		resolver:    NewResolver(companies, brokers),
		duplicates:  NewDuplicateDetector(ledger),
		importer:    NewImporter(ledger),
		ledger:      ledger,
		limiter:     NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		maxFileSize: opts.MaxFileSize,
	}, nil
}

// Preview parses, resolves, derives and validates every row of an upload.
// Row problems are collected on the batch. Only structural problems (the
// input cannot be read, is empty, or has no data rows) return an error.
func (p *Pipeline) Preview(ctx context.Context, name string, r io.Reader, defaults Defaults) (*Batch, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.limiter.Release()

	sh, err := readUpload(name, r, p.maxFileSize)
	if err != nil {
		return nil, &StructuralError{File: name, Err: err}
	}

	b := &Batch{
		ID:        uuid.New(),
		FileName:  name,
		CreatedAt: time.Now().UTC(),
	}
	logger := logging.WithFields(ctx, "batch_id", b.ID.String(), "file", name)

	cm := p.layout.Positional()
	b.Trace = Trace{
		Source:     sh.source,
		Delimiter:  delimiterName(sh.delimiter),
		Headerless: true,
		Lines:      len(sh.rows),
	}
	if sh.source == sourceSpreadsheet {
		b.Trace.Delimiter = ""
	}
	cells := make([][]string, len(sh.rows))
	for i, row := range sh.rows {
		cells[i] = row.cells
	}
	headerAt, found := p.layout.LocateHeader(cells, p.parser.minColumns)
	if found {
		header := sh.rows[headerAt].cells
		cm = p.layout.MapHeaders(header)
		b.Trace.Headerless = false
		b.Trace.Header = header
	}
	b.Trace.Columns = cm

	memo := newLookupMemo()
	candidates := make([]Candidate, 0, len(sh.rows))
	for i, row := range sh.rows {
		// Preamble above the header is not data.
		if i < headerAt {
			b.Trace.SkippedLines++
			continue
		}
		c, outcome := p.parser.ParseRow(row.line, row.cells, cm)
		switch outcome {
		case rowSkipped:
			b.Trace.SkippedLines++
			continue
		case rowRejected:
			candidates = append(candidates, c)
			continue
		}

		p.resolver.Resolve(ctx, &c, defaults, memo)
		Derive(&c)
		Validate(&c)
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, &StructuralError{File: name, Err: ErrNoDataRows}
	}

	flagRepeats(candidates)
	for _, c := range candidates {
		b.add(c)
	}

	logger.Info("preview built",
		"source", b.Trace.Source,
		"delimiter", b.Trace.Delimiter,
		"headerless", b.Trace.Headerless,
		"mapped_columns", cm.Len(),
		"total_rows", b.Counts.Total,
		"rejected", b.Counts.Rejected,
		"warnings", len(b.Warnings),
	)
	return b, nil
}

// Duplicates lists batch rows that already exist in the ledger, so the caller
// can warn before confirming.
func (p *Pipeline) Duplicates(ctx context.Context, b *Batch) ([]Duplicate, error) {
	return p.duplicates.FindDuplicates(ctx, b)
}

// Confirm commits b under policy. A *CommitError means nothing was written
// and the caller may confirm the same batch again.
func (p *Pipeline) Confirm(ctx context.Context, b *Batch, policy DuplicatePolicy) (ImportResult, error) {
	if b == nil {
		return ImportResult{}, fmt.Errorf("confirm: %w", ErrNoImportableRows)
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return ImportResult{}, err
	}
	defer p.limiter.Release()

	return p.importer.Import(ctx, b, policy)
}

// RecentImports lists committed imports, newest first.
func (p *Pipeline) RecentImports(ctx context.Context, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := p.ledger.RecentImports(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent imports: %w", err)
	}
	return runs, nil
}

// Fields returns the canonical field names in layout order.
func (p *Pipeline) Fields() []Field {
	return p.layout.Fields()
}

// LimiterStatus reports how many imports are running.
func (p *Pipeline) LimiterStatus() LimiterStatus {
	return p.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (p *Pipeline) WaitForImports(ctx context.Context) error {
	return p.limiter.WaitForDrain(ctx)
}
