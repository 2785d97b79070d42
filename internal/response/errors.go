package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrParticipantOnly ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrOperatorOnly    ErrCode = "OPERATOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Marathon-specific ─────────────────────────────────────────────
	ErrMarathonNotOpen ErrCode = "MARATHON_NOT_OPEN"
	ErrNoQuestions     ErrCode = "NO_QUESTIONS"
	ErrReportNotFound  ErrCode = "REPORT_NOT_FOUND"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrParticipantOnly:
		return "This resource is restricted to participants."
	case ErrOperatorOnly:
		return "This resource is restricted to operators."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrNotFound:
		return "Resource not found."
	case ErrMarathonNotOpen:
		return "This marathon is not open for attempts."
	case ErrNoQuestions:
		return "This marathon has no questions."
	case ErrReportNotFound:
		return "No report has been generated for this marathon yet."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
