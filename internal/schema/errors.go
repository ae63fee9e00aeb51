package schema

import "errors"

var (
	ErrFileDoesNotExist  = errors.New("schema file does not exist")
	ErrReadSchemaFail    = errors.New("failed to read schema file")
	ErrSchemaParsingFail = errors.New("failed to parse schema file")
	ErrUnknownField      = errors.New("unknown field key")
	ErrUnknownComponent  = errors.New("unknown component")
)
