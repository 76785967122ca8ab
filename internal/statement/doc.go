// Package statement defines royalty statements, their rows, and the tabular
// reader that turns uploaded CSV or XLSX files into normalized rows.
//
// Match fields on Row are written by the matching engine and by review
// resolution; everything else is fixed once the statement is parsed.
package statement
