package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI 3.1 document describing the Watchdeck HTTP
// surface. The route set is fixed, so the document is assembled
// programmatically rather than generated from annotations.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Watchdeck API",
			Description: "REST API for the Watchdeck media tracker.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	// API keys and session tokens both travel as bearer credentials.
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "API key or JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	doc.Paths = openapi3.NewPaths()

	registerSchemas(doc)
	addAuthPaths(doc)
	addWatchPaths(doc)
	addCommentPaths(doc)
	addRatingPaths(doc)
	addSystemPaths(doc)

	return doc
}

func registerSchemas(doc *openapi3.T) {
	doc.Components.Schemas["ErrorResponse"] = objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code":    scalarSchema("integer"),
			"message": scalarSchema("string"),
			"context": scalarSchema("object"),
		}),
	})

	doc.Components.Schemas["WatchEntry"] = objectSchema(openapi3.Schemas{
		"id":               scalarSchema("string"),
		"user_id":          scalarSchema("string"),
		"title_id":         scalarSchema("string"),
		"media_type":       scalarSchema("string"),
		"season":           scalarSchema("integer"),
		"episode":          scalarSchema("integer"),
		"progress_seconds": scalarSchema("integer"),
		"finished":         scalarSchema("boolean"),
		"created_at":       scalarSchema("string"),
		"updated_at":       scalarSchema("string"),
	})

	doc.Components.Schemas["Comment"] = objectSchema(openapi3.Schemas{
		"id":         scalarSchema("string"),
		"user_id":    scalarSchema("string"),
		"title_id":   scalarSchema("string"),
		"body":       scalarSchema("string"),
		"created_at": scalarSchema("string"),
	})

	doc.Components.Schemas["Rating"] = objectSchema(openapi3.Schemas{
		"id":         scalarSchema("string"),
		"user_id":    scalarSchema("string"),
		"title_id":   scalarSchema("string"),
		"score":      scalarSchema("integer"),
		"created_at": scalarSchema("string"),
		"updated_at": scalarSchema("string"),
	})

	doc.Components.Schemas["APIKey"] = objectSchema(openapi3.Schemas{
		"id":           scalarSchema("string"),
		"key_prefix":   scalarSchema("string"),
		"name":         scalarSchema("string"),
		"permissions":  arraySchema(scalarSchema("string")),
		"revoked":      scalarSchema("boolean"),
		"frozen":       scalarSchema("boolean"),
		"expires_at":   scalarSchema("string"),
		"created_at":   scalarSchema("string"),
		"last_used_at": scalarSchema("string"),
	})

	doc.Components.Schemas["User"] = objectSchema(openapi3.Schemas{
		"id":         scalarSchema("string"),
		"email":      scalarSchema("string"),
		"username":   scalarSchema("string"),
		"is_admin":   scalarSchema("boolean"),
		"is_active":  scalarSchema("boolean"),
		"created_at": scalarSchema("string"),
	})

	doc.Components.Schemas["RequestLog"] = objectSchema(openapi3.Schemas{
		"id":          scalarSchema("string"),
		"request_id":  scalarSchema("string"),
		"method":      scalarSchema("string"),
		"path":        scalarSchema("string"),
		"status":      scalarSchema("integer"),
		"key_id":      scalarSchema("string"),
		"user_id":     scalarSchema("string"),
		"duration_ms": scalarSchema("number"),
		"ip":          scalarSchema("string"),
		"user_agent":  scalarSchema("string"),
		"created_at":  scalarSchema("string"),
	})
}

func addAuthPaths(doc *openapi3.T) {
	registerBody := objectSchema(openapi3.Schemas{
		"invite_code": scalarSchema("string"),
		"email":       scalarSchema("string"),
		"username":    scalarSchema("string"),
		"password":    scalarSchema("string"),
	})
	loginBody := objectSchema(openapi3.Schemas{
		"email":    scalarSchema("string"),
		"password": scalarSchema("string"),
	})
	tokenResponse := objectSchema(openapi3.Schemas{
		"token":      scalarSchema("string"),
		"expires_at": scalarSchema("string"),
	})

	doc.Paths.Set("/api/v1/auth/register", &openapi3.PathItem{
		Post: openOperation("auth", "Register a new account with an invite code", registerBody,
			openapi3.NewSchemaRef("#/components/schemas/User", nil)),
	})
	doc.Paths.Set("/api/v1/auth/login", &openapi3.PathItem{
		Post: openOperation("auth", "Log in and receive a session token", loginBody, tokenResponse),
	})
}

func addWatchPaths(doc *openapi3.T) {
	entryRef := openapi3.NewSchemaRef("#/components/schemas/WatchEntry", nil)
	upsertBody := objectSchema(openapi3.Schemas{
		"title_id":         scalarSchema("string"),
		"media_type":       scalarSchema("string"),
		"season":           scalarSchema("integer"),
		"episode":          scalarSchema("integer"),
		"progress_seconds": scalarSchema("integer"),
		"finished":         scalarSchema("boolean"),
	})

	doc.Paths.Set("/api/v1/watch", &openapi3.PathItem{
		Get: operation("watch", "List the caller's watch progress", nil, listSchema(entryRef)),
		Put: operation("watch", "Create or update a watch entry", upsertBody, entryRef),
	})
	doc.Paths.Set("/api/v1/watch/{entryId}", &openapi3.PathItem{
		Delete:     operation("watch", "Delete a watch entry", nil, nil),
		Parameters: pathParams("entryId"),
	})
}

func addCommentPaths(doc *openapi3.T) {
	commentRef := openapi3.NewSchemaRef("#/components/schemas/Comment", nil)
	createBody := objectSchema(openapi3.Schemas{
		"title_id": scalarSchema("string"),
		"body":     scalarSchema("string"),
	})

	listOp := operation("comments", "List comments for a title", nil, listSchema(commentRef))
	listOp.Parameters = append(listOp.Parameters, queryParam("title_id", "string"))

	doc.Paths.Set("/api/v1/comments", &openapi3.PathItem{
		Get:  listOp,
		Post: operation("comments", "Post a comment", createBody, commentRef),
	})
	doc.Paths.Set("/api/v1/comments/{commentId}", &openapi3.PathItem{
		Delete:     operation("comments", "Delete a comment", nil, nil),
		Parameters: pathParams("commentId"),
	})
}

func addRatingPaths(doc *openapi3.T) {
	ratingRef := openapi3.NewSchemaRef("#/components/schemas/Rating", nil)
	summary := objectSchema(openapi3.Schemas{
		"summary": objectSchema(openapi3.Schemas{
			"title_id": scalarSchema("string"),
			"count":    scalarSchema("integer"),
			"average":  scalarSchema("number"),
		}),
		"own": ratingRef,
	})
	upsertBody := objectSchema(openapi3.Schemas{
		"title_id": scalarSchema("string"),
		"score":    scalarSchema("integer"),
	})

	getOp := operation("ratings", "Get the rating summary for a title", nil, summary)
	getOp.Parameters = append(getOp.Parameters, queryParam("title_id", "string"))

	doc.Paths.Set("/api/v1/ratings", &openapi3.PathItem{
		Get: getOp,
		Put: operation("ratings", "Set the caller's rating for a title", upsertBody, ratingRef),
	})
}

func addSystemPaths(doc *openapi3.T) {
	keyRef := openapi3.NewSchemaRef("#/components/schemas/APIKey", nil)
	userRef := openapi3.NewSchemaRef("#/components/schemas/User", nil)
	logRef := openapi3.NewSchemaRef("#/components/schemas/RequestLog", nil)

	createKeyBody := objectSchema(openapi3.Schemas{
		"name":        scalarSchema("string"),
		"permissions": arraySchema(scalarSchema("string")),
		"user_id":     scalarSchema("string"),
		"expires_in":  scalarSchema("string"),
	})
	createKeyResponse := objectSchema(openapi3.Schemas{
		"id":          scalarSchema("string"),
		"name":        scalarSchema("string"),
		"key":         scalarSchema("string"),
		"key_prefix":  scalarSchema("string"),
		"permissions": arraySchema(scalarSchema("string")),
		"created_at":  scalarSchema("string"),
	})

	doc.Paths.Set("/api/v1/system/api-key", &openapi3.PathItem{
		Get:  operation("system", "List API keys", nil, listSchema(keyRef)),
		Post: operation("system", "Create an API key", createKeyBody, createKeyResponse),
	})
	doc.Paths.Set("/api/v1/system/api-key/{keyId}", &openapi3.PathItem{
		Delete:     operation("system", "Revoke an API key", nil, nil),
		Parameters: pathParams("keyId"),
	})
	doc.Paths.Set("/api/v1/system/api-key/{keyId}/freeze", &openapi3.PathItem{
		Post:       operation("system", "Freeze an API key", nil, keyRef),
		Parameters: pathParams("keyId"),
	})
	doc.Paths.Set("/api/v1/system/api-key/{keyId}/unfreeze", &openapi3.PathItem{
		Post:       operation("system", "Unfreeze an API key", nil, keyRef),
		Parameters: pathParams("keyId"),
	})

	flagBody := objectSchema(openapi3.Schemas{"value": scalarSchema("boolean")})
	doc.Paths.Set("/api/v1/system/user", &openapi3.PathItem{
		Get: operation("system", "List users", nil, listSchema(userRef)),
	})
	doc.Paths.Set("/api/v1/system/user/{userId}/admin", &openapi3.PathItem{
		Put:        operation("system", "Grant or revoke admin", flagBody, userRef),
		Parameters: pathParams("userId"),
	})
	doc.Paths.Set("/api/v1/system/user/{userId}/active", &openapi3.PathItem{
		Put:        operation("system", "Enable or disable an account", flagBody, userRef),
		Parameters: pathParams("userId"),
	})

	inviteBody := objectSchema(openapi3.Schemas{"expires_in": scalarSchema("string")})
	inviteSchema := objectSchema(openapi3.Schemas{
		"id":         scalarSchema("string"),
		"code":       scalarSchema("string"),
		"expires_at": scalarSchema("string"),
	})
	doc.Paths.Set("/api/v1/system/invite", &openapi3.PathItem{
		Get:  operation("system", "List invites", nil, listSchema(nil)),
		Post: operation("system", "Create an invite", inviteBody, inviteSchema),
	})

	logsOp := operation("system", "Page through the request audit trail", nil, listSchema(logRef))
	logsOp.Parameters = append(logsOp.Parameters, queryParam("limit", "integer"), queryParam("offset", "integer"))
	doc.Paths.Set("/api/v1/system/request-log", &openapi3.PathItem{
		Get: logsOp,
	})
}

// --- schema helpers ---

func scalarSchema(typ string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}}}
}

func objectSchema(props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: items,
	}}
}

func listSchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	if items == nil {
		items = scalarSchema("object")
	}
	meta := objectSchema(openapi3.Schemas{
		"count":  scalarSchema("integer"),
		"total":  scalarSchema("integer"),
		"limit":  scalarSchema("integer"),
		"offset": scalarSchema("integer"),
	})
	return objectSchema(openapi3.Schemas{
		"resource": arraySchema(items),
		"meta":     meta,
	})
}

// --- operation helpers ---

func jsonResponses(description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	if schema != nil {
		responses.Set("200", &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &description,
				Content:     openapi3.NewContentWithJSONSchemaRef(schema),
			},
		})
	} else {
		responses.Set("204", &openapi3.ResponseRef{
			Value: &openapi3.Response{Description: &description},
		})
	}
	errDesc := "Error"
	responses.Set("default", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &errDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)),
		},
	})
	return responses
}

func operation(tag, summary string, body, response *openapi3.SchemaRef) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:      []string{tag},
		Summary:   summary,
		Responses: jsonResponses(summary, response),
	}
	if body != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(body),
			},
		}
	}
	return op
}

// openOperation marks a route as reachable without credentials.
func openOperation(tag, summary string, body, response *openapi3.SchemaRef) *openapi3.Operation {
	op := operation(tag, summary, body, response)
	op.Security = &openapi3.SecurityRequirements{}
	return op
}

func pathParams(names ...string) openapi3.Parameters {
	params := openapi3.Parameters{}
	for _, name := range names {
		params = append(params, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:     name,
				In:       "path",
				Required: true,
				Schema:   scalarSchema("string"),
			},
		})
	}
	return params
}

func queryParam(name, typ string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:   name,
			In:     "query",
			Schema: scalarSchema(typ),
		},
	}
}
