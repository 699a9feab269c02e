package firebase

import (
	"strings"

	"github.com/ajitpratap0/remotescan/pkg/connector/mapper"
	"github.com/ajitpratap0/remotescan/pkg/connector/pushdown"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

const (
	ObjectUsers     = "auth/users"
	firestorePrefix = "firestore/"

	DefaultAuthURL      = "https://identitytoolkit.googleapis.com/v1/projects"
	DefaultFirestoreURL = "https://firestore.googleapis.com/v1/projects"
)

// endpoint describes how one object is listed
type endpoint struct {
	baseURL       string
	path          string
	pageSize      int64
	pageSizeParam string
	cursorParam   string
	schema        *mapper.Schema
}

func millis(column string, path ...string) mapper.FieldSpec {
	spec := mapper.Nested(column, models.TypeTimestamp, path...)
	spec.EpochMillis = true
	return spec
}

var userFields = []mapper.FieldSpec{
	mapper.Nested("uid", models.TypeString, "localId"),
	mapper.Nested("local_id", models.TypeString, "localId"),
	mapper.Field("email", models.TypeString),
	mapper.Nested("email_verified", models.TypeBool, "emailVerified"),
	mapper.Nested("display_name", models.TypeString, "displayName"),
	mapper.Nested("phone_number", models.TypeString, "phoneNumber"),
	mapper.Field("disabled", models.TypeBool),
	millis("created_at", "createdAt"),
	millis("last_login_at", "lastLoginAt"),
	// the whole user record
	mapper.Nested("fields", models.TypeJSON),
}

var documentFields = []mapper.FieldSpec{
	mapper.Field("name", models.TypeString),
	mapper.Field("fields", models.TypeJSON),
	mapper.Nested("create_time", models.TypeTimestamp, "createTime"),
	mapper.Nested("update_time", models.TypeTimestamp, "updateTime"),
}

// resolve maps an object name onto its endpoint
func resolve(object, projectID string) (*endpoint, error) {
	switch {
	case object == ObjectUsers:
		return &endpoint{
			baseURL:       DefaultAuthURL,
			path:          projectID + "/accounts:batchGet",
			pageSize:      1000,
			pageSizeParam: "maxResults",
			cursorParam:   "nextPageToken",
			schema: &mapper.Schema{
				Object:  object,
				Fields:  userFields,
				ListKey: "users",
			},
		}, nil
	case strings.HasPrefix(object, firestorePrefix) && len(object) > len(firestorePrefix):
		collection := strings.TrimPrefix(object, firestorePrefix)
		return &endpoint{
			baseURL:       DefaultFirestoreURL,
			path:          projectID + "/databases/(default)/documents/" + collection,
			pageSize:      300,
			pageSizeParam: "pageSize",
			cursorParam:   "pageToken",
			schema: &mapper.Schema{
				Object:  object,
				Fields:  documentFields,
				ListKey: "documents",
			},
		}, nil
	}
	return nil, pushdown.NotImplemented(object)
}
