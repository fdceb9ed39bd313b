package errs

// Code classifies an error for transport mapping and logging.
type Code string

const (
	CodeAuthorizationDenied Code = "AUTHORIZATION_DENIED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidationFailed    Code = "VALIDATION_FAILED"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodePersistenceFailure  Code = "PERSISTENCE_FAILURE"
)
