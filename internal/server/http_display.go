package server

import "fmt"

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
	s.displayPromptInfo()
}

// displayPromptInfo shows which prompt files are watched for changes
func (s *Server) displayPromptInfo() {
	if s.PromptWatcher == nil || len(s.PromptWatcher.Files()) == 0 {
		return
	}
	fmt.Println("Prompt hot reload: ENABLED")
	for _, f := range s.PromptWatcher.Files() {
		fmt.Printf("  - %s\n", f)
	}
}

// displayEndpoints shows available API endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET    /health                                        - Health check")
	fmt.Println("  GET    /stats                                         - Server statistics")
	fmt.Println("  POST   /api/v1/sessions                               - Start an editing session")
	fmt.Println("  GET    /api/v1/sessions/{id}                          - Session state")
	fmt.Println("  PUT    /api/v1/sessions/{id}/document                 - Replace the session document")
	fmt.Println("  POST   /api/v1/sessions/{id}/suggestions              - Request AI suggestions")
	fmt.Println("  POST   /api/v1/sessions/{id}/suggestions/{sid}/accept - Apply a suggestion")
	fmt.Println("  POST   /api/v1/sessions/{id}/suggestions/{sid}/reject - Dismiss a suggestion")
	fmt.Println("  POST   /api/v1/sessions/{id}/save                     - Save the document")
	fmt.Println("  DELETE /api/v1/sessions/{id}                          - Discard a session")
	fmt.Println("  GET    /api/v1/documents/{id}                         - Load a saved document")
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if n := s.apiKeyCount(); n > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", n)
		fmt.Println("Include 'X-API-Key: <your-key>' header in requests to /api/v1")
		if s.KeyWatcher != nil {
			fmt.Println("  - Keys rotate from Vault without a restart")
		}
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
		fmt.Println("WARNING: API endpoints are publicly accessible!")
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
		fmt.Println("WARNING: No request size limits configured!")
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.RateLimit != nil && s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
		fmt.Println("WARNING: No rate limiting configured!")
	}
}
