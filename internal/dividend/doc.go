// Package dividend implements the dividend file ingestion pipeline.
//
// The package holds all import logic independent of HTTP or storage. Web
// handlers, tests and tools drive it through [Pipeline]; persistence and
// reference data are reached only through the [CompanyDirectory],
// [BrokerDirectory] and [Ledger] interfaces.
//
// # Stages
//
// A preview runs the per-file and per-row stages synchronously:
//
//  1. [DetectDelimiter] picks `;`, `,` or tab from the first line that is
//     not blank or a comment.
//  2. [Layout.LocateHeader] finds the header below any preamble and
//     [Layout.MapHeaders] turns it into a [ColumnMap] using the embedded
//     synonym table. Files without a header use [Layout.Positional].
//  3. [NormalizeNumber] and [ParseDate] convert raw cells.
//  4. [Parser.ParseRow] builds a [Candidate] per physical line.
//  5. [Resolver.Resolve] fills company, broker and account-group identity.
//  6. [Derive] computes omitted SEK amounts.
//  7. [Validate] classifies the row as complete, incomplete or rejected.
//
// The resulting [Batch] is handed back to the caller, who keeps it until the
// operator confirms. [Pipeline.Confirm] then runs duplicate detection and the
// all-or-nothing [Importer].
//
// # Error Handling
//
// Row problems never stop a preview; they are collected as [Issue] values on
// the batch. Structural problems (unreadable or empty input) are returned as
// [*StructuralError]. A failed commit is returned as a single [*CommitError]
// after the ledger transaction is rolled back. [MapError] translates any of
// these into a [UserMessage] with a support code:
//
//   - IMP001-IMP099: upload structure and commit outcome
//   - DB001-DB099: ledger and directory errors
//   - UPL001-UPL099: session and concurrency errors
package dividend
