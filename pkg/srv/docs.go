/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package srv

import (
	"encoding/json"
	"net/http"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"

	"github.com/gpspod/go-gpspod/pkg/log"
)

// swaggerSpec is the API description served at /swagger.json and rendered
// at /docs.
const swaggerSpec = `{
  "swagger": "2.0",
  "info": {
    "title": "go-gpspod API",
    "description": "RESTful APIs to read tracks and control a connected pod",
    "version": "1.0.0"
  },
  "basePath": "/api",
  "consumes": ["application/json"],
  "produces": ["application/json"],
  "paths": {
    "/info": {
      "get": {
        "summary": "Read device identification",
        "responses": {
          "200": {"description": "OK"},
          "503": {"description": "No device attached"}
        }
      }
    },
    "/status": {
      "get": {
        "summary": "Read battery charge",
        "responses": {
          "200": {"description": "OK"},
          "503": {"description": "No device attached"}
        }
      }
    },
    "/tracks": {
      "get": {
        "summary": "List decodable tracks",
        "responses": {
          "200": {"description": "OK"}
        }
      }
    },
    "/tracks/{index}.gpx": {
      "get": {
        "summary": "Render one track as GPX",
        "parameters": [
          {"name": "index", "in": "path", "required": true, "type": "integer"}
        ],
        "produces": ["application/gpx+xml"],
        "responses": {
          "200": {"description": "OK"},
          "404": {"description": "No such track"}
        }
      }
    },
    "/time": {
      "post": {
        "summary": "Set the device clock",
        "responses": {
          "200": {"description": "OK"},
          "503": {"description": "No device attached"}
        }
      }
    },
    "/log": {
      "get": {
        "summary": "Read the internal diagnostic log",
        "responses": {
          "200": {"description": "OK"}
        }
      }
    }
  }
}`

// configureDocs serves the swagger spec and its Redoc rendering.
func (s *ApiServer) configureDocs() {
	doc, err := loads.Analyzed(json.RawMessage(swaggerSpec), "")
	if err != nil {
		log.Error("Swagger spec does not load: %v", err)
		return
	}
	raw := doc.Raw()
	s.Router.HandleFunc("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}).Methods("GET")
	s.Router.Handle("/docs", middleware.Redoc(middleware.RedocOpts{
		BasePath: "/",
		SpecURL:  "/swagger.json",
		Path:     "docs",
	}, nil))
}
