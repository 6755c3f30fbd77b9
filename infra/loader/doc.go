// Package loader reads planning instances from disk: a single YAML or JSON
// document, or a directory of CSV tables named after the model tables
// (nodes.csv, chargers.csv, D_p_t.csv, CFIX_i_t.csv and so on). Missing
// required tables and malformed rows are reported as *model.TableError.
package loader
