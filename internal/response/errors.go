package response

import "net/http"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotExamOwner      ErrCode = "NOT_EXAM_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidOption  ErrCode = "INVALID_OPTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Admission ─────────────────────────────────────────────────────
	ErrNotEnrolled      ErrCode = "NOT_ENROLLED"
	ErrExamNotActive    ErrCode = "EXAM_NOT_ACTIVE"
	ErrExamNotStarted   ErrCode = "EXAM_NOT_STARTED"
	ErrExamEnded        ErrCode = "EXAM_ENDED"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"

	// ─── Attempt state ─────────────────────────────────────────────────
	ErrNoActiveAttempt    ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrInvalidState       ErrCode = "INVALID_STATE"
	ErrSessionReplaced    ErrCode = "SESSION_REPLACED"
	ErrAttemptExpired     ErrCode = "ATTEMPT_EXPIRED"
	ErrResultNotAvailable ErrCode = "RESULT_NOT_AVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrTeacherAccessOnly:
		return "Sumber daya ini terbatas untuk guru."
	case ErrNotExamOwner:
		return "Anda bukan pengampu ujian ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidOption:
		return "Pilihan jawaban harus A, B, C, atau D."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Admission ─────────────────────────────────────────────────────
	case ErrNotEnrolled:
		return "Anda tidak terdaftar di kelas ujian ini."
	case ErrExamNotActive:
		return "Ujian ini saat ini tidak tersedia."
	case ErrExamNotStarted:
		return "Ujian belum dimulai."
	case ErrExamEnded:
		return "Waktu ujian telah berakhir."
	case ErrAlreadySubmitted:
		return "Anda sudah mengumpulkan ujian ini."

	// ─── Attempt state ─────────────────────────────────────────────────
	case ErrNoActiveAttempt:
		return "Tidak ada pengerjaan ujian yang sedang berlangsung."
	case ErrInvalidState:
		return "Tindakan ini tidak diperbolehkan pada status pengerjaan saat ini."
	case ErrSessionReplaced:
		return "Ujian dibuka di perangkat atau tab lain. Sesi ini telah dihentikan."
	case ErrAttemptExpired:
		return "Waktu pengerjaan habis. Jawaban Anda telah dikumpulkan otomatis."
	case ErrResultNotAvailable:
		return "Hasil belum tersedia sebelum ujian dikumpulkan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// StatusOf returns the HTTP status normally paired with code.
func StatusOf(code ErrCode) int {
	switch code {
	case ErrTokenRequired, ErrTokenInvalid:
		return http.StatusUnauthorized
	case ErrStudentAccessOnly, ErrTeacherAccessOnly, ErrNotExamOwner, ErrNotEnrolled:
		return http.StatusForbidden
	case ErrValidation, ErrInvalidID, ErrInvalidPayload, ErrInvalidOption:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrExamNotActive, ErrExamNotStarted, ErrExamEnded, ErrAlreadySubmitted,
		ErrNoActiveAttempt, ErrInvalidState, ErrSessionReplaced, ErrResultNotAvailable:
		return http.StatusConflict
	case ErrAttemptExpired:
		return http.StatusGone
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
