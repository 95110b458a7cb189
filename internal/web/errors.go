package web

import (
	"fmt"
	"net/http"
)

// AppError represents a structured API error with a machine-readable code.
// The Message field is an English fallback for API consumers; the frontend
// translates error_code into the user's language.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, message string, httpStatus int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// FailErr writes a structured error response from an AppError.
// Optional detail is appended to the message (e.g. err.Error()).
func FailErr(w http.ResponseWriter, r *http.Request, e *AppError, detail ...string) {
	msg := e.Message
	if len(detail) > 0 && detail[0] != "" {
		msg = msg + ": " + detail[0]
	}
	Fail(w, r, e.Code, msg, e.HTTPStatus)
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

var (
	ErrUnauthorized     = &AppError{"AUTH_UNAUTHORIZED", "not logged in or session expired", 401, nil}
	ErrForbidden        = &AppError{"AUTH_FORBIDDEN", "permission denied", 403, nil}
	ErrInvalidPassword  = &AppError{"AUTH_INVALID_PASSWORD", "invalid username or password", 401, nil}
	ErrAccountLocked    = &AppError{"AUTH_ACCOUNT_LOCKED", "account locked, try again later", 423, nil}
	ErrTokenExpired     = &AppError{"AUTH_TOKEN_EXPIRED", "session expired, please login again", 401, nil}
	ErrTokenInvalid     = &AppError{"AUTH_TOKEN_INVALID", "invalid token", 400, nil}
	ErrEmptyCredentials = &AppError{"AUTH_EMPTY_CREDENTIALS", "username and password required", 400, nil}
	ErrUnsafeInput      = &AppError{"AUTH_UNSAFE_INPUT", "input contains illegal characters", 400, nil}
	ErrPasswordTooShort = &AppError{"AUTH_PASSWORD_TOO_SHORT", "password does not meet minimum length", 400, nil}
	ErrSetupDone        = &AppError{"AUTH_SETUP_DONE", "admin account already exists", 409, nil}
	ErrOldPasswordWrong = &AppError{"AUTH_OLD_PASSWORD_WRONG", "old password incorrect", 401, nil}
	ErrLoginFailed      = &AppError{"AUTH_LOGIN_FAILED", "login failed", 500, nil}
)

// ---------------------------------------------------------------------------
// System / generic
// ---------------------------------------------------------------------------

var (
	ErrNotFound      = &AppError{"NOT_FOUND", "resource not found", 404, nil}
	ErrInvalidParam  = &AppError{"INVALID_PARAM", "invalid request parameter", 400, nil}
	ErrInvalidBody   = &AppError{"INVALID_BODY", "invalid request body", 400, nil}
	ErrInternalError = &AppError{"INTERNAL_ERROR", "internal server error", 500, nil}
	ErrRateLimited   = &AppError{"RATE_LIMITED", "too many requests, please try later", 429, nil}
	ErrDBQuery       = &AppError{"DB_QUERY_FAILED", "database query failed", 500, nil}
	ErrEncrypt       = &AppError{"ENCRYPT_FAILED", "encryption failed", 500, nil}
)

// ---------------------------------------------------------------------------
// User management
// ---------------------------------------------------------------------------

var (
	ErrUserNotFound   = &AppError{"USER_NOT_FOUND", "user not found", 404, nil}
	ErrUserExists     = &AppError{"USER_EXISTS", "username already exists", 409, nil}
	ErrUserCreateFail = &AppError{"USER_CREATE_FAILED", "user creation failed", 500, nil}
	ErrUserDeleteFail = &AppError{"USER_DELETE_FAILED", "user deletion failed", 500, nil}
	ErrUserSelfDelete = &AppError{"USER_SELF_DELETE", "cannot delete current user", 403, nil}
	ErrInvalidRole    = &AppError{"USER_INVALID_ROLE", "unknown role", 400, nil}
)

// ---------------------------------------------------------------------------
// Tracking / analytics
// ---------------------------------------------------------------------------

var (
	ErrTrackerStopped = &AppError{"TRACK_STOPPED", "activity tracking is not running", 409, nil}
	ErrTrackFailed    = &AppError{"TRACK_FAILED", "failed to record activity", 500, nil}
	ErrNoProfile      = &AppError{"ANOMALY_NO_PROFILE", "no behavior baseline for user", 404, nil}
	ErrLearnFailed    = &AppError{"ANOMALY_LEARN_FAILED", "behavior baseline learning failed", 500, nil}
	ErrDetectFailed   = &AppError{"ANOMALY_DETECT_FAILED", "anomaly detection failed", 500, nil}
)

// ---------------------------------------------------------------------------
// Export / import
// ---------------------------------------------------------------------------

var (
	ErrExportFailed  = &AppError{"EXPORT_FAILED", "export failed", 500, nil}
	ErrImportFailed  = &AppError{"IMPORT_FAILED", "import failed", 500, nil}
	ErrImportBadCSV  = &AppError{"IMPORT_BAD_CSV", "malformed CSV input", 400, nil}
	ErrSettingFailed = &AppError{"SETTING_UPDATE_FAILED", "settings update failed", 500, nil}
)
