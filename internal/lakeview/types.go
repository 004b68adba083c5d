package lakeview

// PermissionLevel is a dashboard permission level.
type PermissionLevel string

const (
	CanRead   PermissionLevel = "CAN_READ"
	CanRun    PermissionLevel = "CAN_RUN"
	CanEdit   PermissionLevel = "CAN_EDIT"
	CanManage PermissionLevel = "CAN_MANAGE"
)

// PrincipalType selects which field of an access-control entry names the principal.
type PrincipalType string

const (
	PrincipalGroup            PrincipalType = "group"
	PrincipalUser             PrincipalType = "user"
	PrincipalServicePrincipal PrincipalType = "service_principal"
)

// AccessControl grants Level on a dashboard to a principal.
type AccessControl struct {
	Principal     string
	PrincipalType PrincipalType
	Level         PermissionLevel
}

// Dashboard is a remote dashboard. List responses leave SerializedDashboard empty.
type Dashboard struct {
	ID                  string `json:"dashboard_id"`
	DisplayName         string `json:"display_name"`
	WarehouseID         string `json:"warehouse_id,omitempty"`
	SerializedDashboard string `json:"serialized_dashboard,omitempty"`
	Path                string `json:"path,omitempty"`
	ParentPath          string `json:"parent_path,omitempty"`
	LifecycleState      string `json:"lifecycle_state,omitempty"`
	CreateTime          string `json:"create_time,omitempty"`
	UpdateTime          string `json:"update_time,omitempty"`
}

// CreateRequest describes a dashboard to create.
type CreateRequest struct {
	DisplayName         string `json:"display_name"`
	SerializedDashboard string `json:"serialized_dashboard"`
	WarehouseID         string `json:"warehouse_id,omitempty"`
	ParentPath          string `json:"parent_path,omitempty"`
}

type listResponse struct {
	Dashboards    []Dashboard `json:"dashboards"`
	NextPageToken string      `json:"next_page_token"`
}

type accessControlRequest struct {
	GroupName            string          `json:"group_name,omitempty"`
	UserName             string          `json:"user_name,omitempty"`
	ServicePrincipalName string          `json:"service_principal_name,omitempty"`
	PermissionLevel      PermissionLevel `json:"permission_level"`
}

type permissionsRequest struct {
	AccessControlList []accessControlRequest `json:"access_control_list"`
}

func toAccessControlRequests(acl []AccessControl) []accessControlRequest {
	out := make([]accessControlRequest, 0, len(acl))
	for _, ace := range acl {
		req := accessControlRequest{PermissionLevel: ace.Level}
		switch ace.PrincipalType {
		case PrincipalUser:
			req.UserName = ace.Principal
		case PrincipalServicePrincipal:
			req.ServicePrincipalName = ace.Principal
		default:
			req.GroupName = ace.Principal
		}
		out = append(out, req)
	}
	return out
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
