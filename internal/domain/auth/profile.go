package auth

import (
	"strings"
	"time"
)

// FallbackDisplayName is used when neither the identity nor its email yields a name.
const FallbackDisplayName = "User"

// Profile is the application's own record about a user, keyed by the identity ID.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   time.Time  `json:"last_login"`
	Extensions  Extensions `json:"extensions"`
}

// Extensions carries role-specific fields. Only the block matching the role is populated
// on creation; none of it participates in authorization.
type Extensions struct {
	Student  *StudentData  `json:"student,omitempty"`
	Lecturer *LecturerData `json:"lecturer,omitempty"`
	Admin    *AdminData    `json:"admin,omitempty"`
}

// StudentData tracks enrollment and progress.
type StudentData struct {
	EnrolledCourses      []string            `json:"enrolled_courses"`
	CompletedLessons     map[string][]string `json:"completed_lessons"`
	AssignmentsSubmitted map[string]string   `json:"assignments_submitted"`
	QuizScores           map[string]float64  `json:"quiz_scores"`
}

// LessonRef identifies a lesson within a course.
type LessonRef struct {
	LessonID string `json:"lesson_id"`
	CourseID string `json:"course_id"`
}

// LecturerData tracks teaching assignments.
type LecturerData struct {
	AssignedCourses     []string            `json:"assigned_courses"`
	UploadedLessons     []LessonRef         `json:"uploaded_lessons"`
	CreatedAssignments  []string            `json:"created_assignments"`
	ReceivedSubmissions map[string][]string `json:"received_submissions"`
}

// AdminPermissions are informational flags shown in admin tooling.
type AdminPermissions struct {
	ManageUsers   bool `json:"manage_users"`
	ManageCourses bool `json:"manage_courses"`
	ViewAnalytics bool `json:"view_analytics"`
}

// AdminData holds admin-only fields.
type AdminData struct {
	Permissions AdminPermissions `json:"permissions"`
}

// DefaultExtensions returns the empty role-specific structure for a new profile.
func DefaultExtensions(role Role) Extensions {
	switch role {
	case RoleStudent:
		return Extensions{Student: &StudentData{
			EnrolledCourses:      []string{},
			CompletedLessons:     map[string][]string{},
			AssignmentsSubmitted: map[string]string{},
			QuizScores:           map[string]float64{},
		}}
	case RoleLecturer:
		return Extensions{Lecturer: &LecturerData{
			AssignedCourses:     []string{},
			UploadedLessons:     []LessonRef{},
			CreatedAssignments:  []string{},
			ReceivedSubmissions: map[string][]string{},
		}}
	case RoleAdmin:
		return Extensions{Admin: &AdminData{Permissions: AdminPermissions{
			ManageUsers:   true,
			ManageCourses: true,
			ViewAnalytics: true,
		}}}
	default:
		return Extensions{}
	}
}

// DefaultDisplayName picks the provided display name, then the local part of the email,
// then FallbackDisplayName.
func DefaultDisplayName(id Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(id.Email), "@"); ok && local != "" {
		return local
	}
	return FallbackDisplayName
}

// NewProfile builds a profile for an identity with the given role, stamping both
// timestamps with now.
func NewProfile(id Identity, role Role, now time.Time) Profile {
	return Profile{
		ID:          id.ID,
		Email:       id.Email,
		DisplayName: DefaultDisplayName(id),
		Role:        role,
		CreatedAt:   now,
		LastLogin:   now,
		Extensions:  DefaultExtensions(role),
	}
}
