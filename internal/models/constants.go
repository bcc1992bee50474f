package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

const (
	PaymentUnpaid = "unpaid"
)

const (
	BookingMethodOnline = "online"
	BookingMethodAdmin  = "admin"
)

const (
	AdminPaymentStripe  = "stripe"
	AdminPaymentCash    = "cash"
	AdminPaymentCheck   = "check"
	AdminPaymentPending = "pending"
)

const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
)

const (
	// DateLayout формат даты слота (YYYY-MM-DD)
	DateLayout = "2006-01-02"

	// TimeLayout формат времени слота (HH:MM)
	TimeLayout = "15:04"

	// DefaultLessonMinutes длительность слота, когда тип урока ещё не выбран
	DefaultLessonMinutes = 30

	// DefaultReservationTTL время удержания слота в секундах
	DefaultReservationTTL = 5 * 60

	// DefaultSweepInterval период очистки просроченных резервов в секундах
	DefaultSweepInterval = 60

	// DefaultSessionTTL время жизни черновика бронирования в секундах
	DefaultSessionTTL = 24 * 60 * 60

	// DefaultCommitRetries количество повторов шага коммита при временной ошибке хранилища
	DefaultCommitRetries = 3

	// RateLimitRPS ограничение запросов к API по умолчанию
	RateLimitRPS = 10

	// RateLimitBurst всплеск запросов по умолчанию
	RateLimitBurst = 20
)
