package errors

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Registered error codes.
const (
	CodeNodeMissing   = "P001"
	CodeWrongNodeKind = "P002"
	CodeLayoutFailed  = "P010"
	CodePaintFailed   = "P011"
	CodeRebuildFailed = "P012"

	CodeInvalidConfig = "C001"
	CodeConfigRead    = "C002"

	CodeCommandFailed = "X001"

	CodeReportExport = "R001"
)

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Pipeline (P001-P099). P00x are benign and absorbed by the pipelines.
	CodeNodeMissing: {
		Category: CategoryPipeline,
		Message:  "Node not present in tree",
		Detail:   "A node id was scheduled but the node was removed before the pipeline reached it.",
	},
	CodeWrongNodeKind: {
		Category: CategoryPipeline,
		Message:  "Node is not a render node",
		Detail:   "Layout and paint only apply to render nodes; component nodes are skipped.",
	},
	CodeLayoutFailed: {
		Category:   CategoryPipeline,
		Message:    "Layout failed",
		Detail:     "A node's layout computation returned an error. The pass was aborted and the remaining nodes were rescheduled.",
		Suggestion: "Check the layout function of the reported node.",
	},
	CodePaintFailed: {
		Category:   CategoryPipeline,
		Message:    "Paint failed",
		Detail:     "A node's paint computation returned an error. The pass was aborted and the remaining nodes were rescheduled.",
		Suggestion: "Check the paint function of the reported node.",
	},
	CodeRebuildFailed: {
		Category: CategoryPipeline,
		Message:  "Rebuild failed",
		Detail:   "The composition layer failed to rebuild a node scheduled for rebuild.",
	},

	// Config (C001-C099)
	CodeInvalidConfig: {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Suggestion: "Run `framepipe config` to print the effective configuration.",
	},
	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Failed to read configuration",
	},

	// CLI (X001-X099)
	CodeCommandFailed: {
		Category: CategoryCLI,
		Message:  "Command failed",
	},

	// Report (R001-R099)
	CodeReportExport: {
		Category:   CategoryReport,
		Message:    "Failed to export run report",
		Suggestion: "Destinations are a local path or s3://bucket/key.",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
