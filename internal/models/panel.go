package models

// Pterodactyl application API payloads. Every resource arrives wrapped as
// {"object": "...", "attributes": {...}}; lists as {"data": [...]}.

// Item is a single wrapped resource.
type Item[T any] struct {
	Object     string `json:"object"`
	Attributes T      `json:"attributes"`
}

// List is a wrapped resource collection. Application API lists are paged.
type List[T any] struct {
	Object string    `json:"object"`
	Data   []Item[T] `json:"data"`
	Meta   struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// Items unwraps the attributes of every element.
func (l List[T]) Items() []T {
	out := make([]T, 0, len(l.Data))
	for _, d := range l.Data {
		out = append(out, d.Attributes)
	}
	return out
}

// PanelErrorResponse is the panel's error body.
type PanelErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Status string `json:"status"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

type CreateUserRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// PanelUser is a panel account. Password is only populated locally with the
// generated secret; the panel never returns it.
type PanelUser struct {
	ID        int    `json:"id"`
	UUID      string `json:"uuid"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"-"`
}

type Node struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	FQDN        string `json:"fqdn"`
	Maintenance bool   `json:"maintenance_mode"`
}

type Allocation struct {
	ID       int    `json:"id"`
	IP       string `json:"ip"`
	Alias    string `json:"alias,omitempty"`
	Port     int    `json:"port"`
	Assigned bool   `json:"assigned"`
}

// NodeAllocation is the pair picked for a new server. Not cached; fetched
// fresh for every provisioning call.
type NodeAllocation struct {
	NodeID       int    `json:"node_id"`
	AllocationID int    `json:"allocation_id"`
	IP           string `json:"ip"`
	Port         int    `json:"port"`
}

type ServerLimits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

type FeatureLimits struct {
	Databases   int `json:"databases"`
	Allocations int `json:"allocations"`
	Backups     int `json:"backups"`
}

type ServerAllocation struct {
	Default int `json:"default"`
}

type CreateServerRequest struct {
	Name          string            `json:"name"`
	User          int               `json:"user"`
	Egg           int               `json:"egg"`
	DockerImage   string            `json:"docker_image"`
	Startup       string            `json:"startup"`
	Environment   map[string]string `json:"environment"`
	Limits        ServerLimits      `json:"limits"`
	FeatureLimits FeatureLimits     `json:"feature_limits"`
	Allocation    ServerAllocation  `json:"allocation"`
}

type PanelServer struct {
	ID         int          `json:"id"`
	UUID       string       `json:"uuid"`
	Identifier string       `json:"identifier"`
	Name       string       `json:"name"`
	User       int          `json:"user"`
	Node       int          `json:"node"`
	Allocation int          `json:"allocation"`
	Nest       int          `json:"nest"`
	Egg        int          `json:"egg"`
	Limits     ServerLimits `json:"limits"`
	// the panel echoes variables with their native JSON types and adds
	// numeric P_SERVER_* entries, so values stay untyped
	Container struct {
		StartupCommand string         `json:"startup_command"`
		Image          string         `json:"image"`
		Environment    map[string]any `json:"environment"`
	} `json:"container"`
}
