package handler

// Wire-level error codes. These are part of the request surface and never
// change meaning between releases.
const (
	CodeSuccess        = 0
	CodeGeneric        = 101
	CodeBadType        = 102
	CodeParse          = 103
	CodeQueryAdapter   = 201
	CodeQueryFatal     = 202
	CodeInsertFailed   = 301
	CodeInsertAdapter  = 302
	CodeInsertFatal    = 303
	CodeBadRequest     = 400
	CodeRemoveAdapter  = 401
	CodeRemoveFailed   = 402
	CodeRegisterFailed = 502
)
