package core

// Notification types emitted by the evaluation workflow.
const (
	NotificationEvaluationTaskAssigned  = "EVALUATION_TASK_ASSIGNED"
	NotificationEvaluationTaskCompleted = "EVALUATION_TASK_COMPLETED"
	NotificationReviewAssigned          = "REVIEW_ASSIGNED"
	NotificationDeadlineReminder        = "DEADLINE_REMINDER"
	NotificationSystemAlert             = "SYSTEM_ALERT"
)

// Related entity kinds a notification may point at.
const (
	RelatedEntityStudy          = "STUDY"
	RelatedEntityEvaluationTask = "EVALUATION_TASK"
	RelatedEntityReview         = "REVIEW"
)

type (
	// NotificationRecipient identifies a user without depending on the user package.
	NotificationRecipient struct {
		ID    int
		Name  string
		Email string
	}

	Notification struct {
		Recipient         NotificationRecipient
		Sender            NotificationRecipient
		Type              string
		Title             string
		Message           string
		RelatedEntityType string
		RelatedEntityID   int
	}

	// NotificationService delivers notifications to participants and reviewers.
	// Delivery mechanics (email, in-app, ...) are up to the implementation;
	// Notify must not block the calling request.
	NotificationService interface {
		Notify(notifications ...*Notification)
	}
)
