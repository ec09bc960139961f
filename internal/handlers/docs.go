package handlers

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openAPIDocument []byte

// swaggerPage is the Swagger UI shell served at /docs. Its assets come from
// the http-swagger bundle mounted under /swagger/.
const swaggerPage = `<!DOCTYPE html>
<html>
<head>
<title>docs - Swagger UI</title>
<meta charset="utf-8"/>
<link type="text/css" rel="stylesheet" href="/swagger/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="/swagger/swagger-ui-bundle.js"></script>
<script src="/swagger/swagger-ui-standalone-preset.js"></script>
<script>
window.onload = function() {
  window.ui = SwaggerUIBundle({
    url: "/openapi.json",
    dom_id: "#swagger-ui",
    deepLinking: true,
    docExpansion: "list",
    presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
    layout: "BaseLayout"
  });
};
</script>
</body>
</html>
`

const redocPage = `<!DOCTYPE html>
<html>
<head>
<title>docs</title>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link href="https://fonts.googleapis.com/css?family=Montserrat:300,400,700|Roboto:300,400,700" rel="stylesheet">
<style>body { margin: 0; padding: 0; }</style>
</head>
<body>
<redoc spec-url="/openapi.json"></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
</body>
</html>
`

// registerDocs mounts the OpenAPI document, Swagger UI (at /docs, with the
// stock http-swagger UI also reachable under /swagger/) and ReDoc. None of
// them require authentication.
func registerDocs(router *gin.Engine) {
	router.GET("/openapi.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", openAPIDocument)
	})

	swagger := gin.WrapH(httpSwagger.Handler(
		httpSwagger.URL("/openapi.json"),
		httpSwagger.DocExpansion("list"),
	))
	router.GET("/swagger/*any", swagger)
	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerPage))
	})

	router.GET("/redoc", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(redocPage))
	})
}
