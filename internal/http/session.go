package http

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// bearerToken extrae el access token del header Authorization. Devuelve
// "" cuando no hay sesion; quien decide si eso es aceptable es cada
// operacion, no este helper.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
