package domain

import "fmt"

// OriginCategory describes how a churn risk was first noticed.
type OriginCategory string

const (
	OriginIndirectConversation OriginCategory = "indirect_conversation"
	OriginFrontDeskNotice      OriginCategory = "front_desk_notice"
	OriginTeacherNotice        OriginCategory = "teacher_or_coordinator_notice"
	OriginMessagingNotice      OriginCategory = "messaging_notice"
	OriginNonPayment           OriginCategory = "non_payment_2_plus_months"
	OriginOther                OriginCategory = "other"
)

var originCategories = []OriginCategory{
	OriginIndirectConversation,
	OriginFrontDeskNotice,
	OriginTeacherNotice,
	OriginMessagingNotice,
	OriginNonPayment,
	OriginOther,
}

func (c OriginCategory) Valid() bool {
	for _, v := range originCategories {
		if v == c {
			return true
		}
	}
	return false
}

type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertRetained AlertStatus = "retained"
	AlertChurned  AlertStatus = "churned"
	AlertResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertPending, AlertRetained, AlertChurned, AlertResolved:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s AlertStatus) Terminal() bool {
	return s == AlertRetained || s == AlertChurned || s == AlertResolved
}

type Column string

const (
	ColumnTodo        Column = "todo"
	ColumnDoing       Column = "doing"
	ColumnScheduled   Column = "scheduled"
	ColumnDone        Column = "done"
	ColumnHibernating Column = "hibernating"
)

func (c Column) Valid() bool {
	switch c {
	case ColumnTodo, ColumnDoing, ColumnScheduled, ColumnDone, ColumnHibernating:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ResultOutcome is the locked board result of a finalized alert.
type ResultOutcome string

const (
	OutcomeEvaded   ResultOutcome = "evaded"
	OutcomeRetained ResultOutcome = "retained"
)

func (o ResultOutcome) Valid() bool {
	return o == OutcomeEvaded || o == OutcomeRetained
}

type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "pending"
	ActivityCompleted ActivityStatus = "completed"
)

type Department string

const (
	DepartmentAdministrative Department = "administrative"
	DepartmentFinancial      Department = "financial"
	DepartmentPedagogical    Department = "pedagogical"
	DepartmentFrontDesk      Department = "front_desk"
)

func (d Department) Valid() bool {
	switch d {
	case DepartmentAdministrative, DepartmentFinancial, DepartmentPedagogical, DepartmentFrontDesk:
		return true
	}
	return false
}

// ActivityType is the closed set of remediation task kinds.
type ActivityType string

const (
	ActivityEngagement            ActivityType = "engagement"
	ActivityFinancialContact      ActivityType = "financial_contact"
	ActivityFinancialNegotiation  ActivityType = "financial_negotiation"
	ActivityChurnIntent           ActivityType = "churn_intent"
	ActivityPedagogicalAttendance ActivityType = "pedagogical_attendance"
	ActivityRetention             ActivityType = "retention"
	ActivityChurn                 ActivityType = "churn"
	ActivityRemoveFromSystem      ActivityType = "remove_from_system"
	ActivityCancelSubscription    ActivityType = "cancel_subscription"
	ActivityRemoveFromMessaging   ActivityType = "remove_from_messaging"
	ActivityFixSystemPricing      ActivityType = "fix_system_pricing"
	ActivityFixSubscriptionPrice  ActivityType = "fix_subscription_pricing"
)

// ActivityTypes lists every known activity type.
var ActivityTypes = []ActivityType{
	ActivityEngagement,
	ActivityFinancialContact,
	ActivityFinancialNegotiation,
	ActivityChurnIntent,
	ActivityPedagogicalAttendance,
	ActivityRetention,
	ActivityChurn,
	ActivityRemoveFromSystem,
	ActivityCancelSubscription,
	ActivityRemoveFromMessaging,
	ActivityFixSystemPricing,
	ActivityFixSubscriptionPrice,
}

// ParseActivityType returns an error for anything outside the closed set.
func ParseActivityType(s string) (ActivityType, error) {
	for _, t := range ActivityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown activity type %q", s)
}

// Category groups activity types the way staff talk about them.
type Category string

const (
	CategoryEngagement            Category = "engagement"
	CategoryFinancialContact      Category = "financial_contact"
	CategoryFinancialService      Category = "financial_service"
	CategoryChurnIntent           Category = "churn_intent"
	CategoryPedagogicalAttendance Category = "pedagogical_attendance"
	CategoryRetention             Category = "retention"
	CategoryChurn                 Category = "churn"
	CategoryAdministrative        Category = "administrative"
)

// Routing says who receives a newly created activity.
type Routing int

const (
	RouteActor Routing = iota
	RouteTeacher
	RouteDepartment
)

// Category maps a type to its group. The switch is exhaustive over the
// closed set; unknown values return false.
func (t ActivityType) Category() (Category, bool) {
	switch t {
	case ActivityEngagement:
		return CategoryEngagement, true
	case ActivityFinancialContact:
		return CategoryFinancialContact, true
	case ActivityFinancialNegotiation:
		return CategoryFinancialService, true
	case ActivityChurnIntent:
		return CategoryChurnIntent, true
	case ActivityPedagogicalAttendance:
		return CategoryPedagogicalAttendance, true
	case ActivityRetention:
		return CategoryRetention, true
	case ActivityChurn:
		return CategoryChurn, true
	case ActivityRemoveFromSystem, ActivityCancelSubscription, ActivityRemoveFromMessaging,
		ActivityFixSystemPricing, ActivityFixSubscriptionPrice:
		return CategoryAdministrative, true
	}
	return "", false
}

// Routing resolves the routing rule for the type's category.
func (t ActivityType) Routing() (Routing, bool) {
	cat, ok := t.Category()
	if !ok {
		return 0, false
	}
	switch cat {
	case CategoryEngagement, CategoryPedagogicalAttendance:
		return RouteTeacher, true
	case CategoryAdministrative:
		return RouteDepartment, true
	case CategoryFinancialContact, CategoryFinancialService, CategoryChurnIntent, CategoryRetention, CategoryChurn:
		return RouteActor, true
	}
	return 0, false
}

func (t ActivityType) Valid() bool {
	_, ok := t.Category()
	return ok
}

// BundleKind tags the administrative task set a sub-task was spawned in.
type BundleKind string

const (
	BundleChurnIntent      BundleKind = "churn_intent"
	BundleNegotiationChurn BundleKind = "negotiation_churn"
	BundlePriceCorrection  BundleKind = "price_correction"
)

// Churn reports whether completing the whole bundle ends in churn.
func (k BundleKind) Churn() bool {
	return k == BundleChurnIntent || k == BundleNegotiationChurn
}

// Tasks returns the fixed administrative subtypes spawned for a bundle.
func (k BundleKind) Tasks() []ActivityType {
	switch k {
	case BundleChurnIntent:
		return []ActivityType{ActivityCancelSubscription, ActivityRemoveFromSystem}
	case BundleNegotiationChurn:
		return []ActivityType{ActivityRemoveFromSystem, ActivityCancelSubscription, ActivityRemoveFromMessaging}
	case BundlePriceCorrection:
		return []ActivityType{ActivityFixSystemPricing, ActivityFixSubscriptionPrice}
	}
	return nil
}
