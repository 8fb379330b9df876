package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the given origins; entries like https://*.vercel.app match any
// subdomain. Origins without an http(s) scheme are returned as rejected.
func CORS(origins []string) (gin.HandlerFunc, []string) {
	var allowed, rejected []string
	seen := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			rejected = append(rejected, o)
			continue
		}
		allowed = append(allowed, o)
	}

	config := cors.DefaultConfig()
	config.AllowOrigins = allowed
	config.AllowWildcard = true
	config.AllowCredentials = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}
	config.ExposeHeaders = []string{RequestIDHeader}
	config.MaxAge = 12 * time.Hour

	if len(allowed) == 0 {
		config.AllowOrigins = nil
		config.AllowOriginFunc = func(string) bool { return false }
	}

	return cors.New(config), rejected
}
