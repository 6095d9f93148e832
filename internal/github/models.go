// internal/github/models.go
package github

// Wire shapes for the upstream REST and GraphQL endpoints.

type searchUsersResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Login string `json:"login"`
	} `json:"items"`
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data   map[string]*graphQLUser `json:"data"`
	Errors []graphQLError          `json:"errors"`
}

type graphQLError struct {
	Type    string        `json:"type"`
	Message string        `json:"message"`
	Path    []interface{} `json:"path"`
}

type graphQLUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Location  string `json:"location"`
	Followers struct {
		TotalCount int `json:"totalCount"`
	} `json:"followers"`
	Repositories struct {
		TotalCount int `json:"totalCount"`
	} `json:"repositories"`
}
