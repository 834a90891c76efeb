// Package query provides the options value consumed by the repository query
// engine: filter, include paths, pagination window, ordering, tracking mode
// and projection selectors, plus functional builders and validation.
package query
