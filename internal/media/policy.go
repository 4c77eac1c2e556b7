// Package media relays multipart uploads through transient local storage to
// the image CDN.
package media

import "strings"

const mb = 1 << 20

// Field is an accepted file field of an upload context.
type Field struct {
	Name   string
	Folder string
	// Width of the delivery transformation; 0 delivers the original asset.
	Width int
}

// Policy describes what an upload context accepts.
type Policy struct {
	Context      string
	Fields       []Field
	Aliases      map[string]string
	MaxFileSize  int64
	MaxFiles     int
	MIMEPrefixes []string
	// FieldError is the rejection message for a field outside the allow-list.
	FieldError string
	MIMEError  string
}

var (
	UserPolicy = Policy{
		Context: "user",
		Fields: []Field{
			{Name: "profile", Folder: "sparklink/profiles", Width: 512},
			{Name: "cover", Folder: "sparklink/covers", Width: 1280},
		},
		Aliases: map[string]string{
			"profilePicture":  "profile",
			"profile_picture": "profile",
			"avatar":          "profile",
			"coverPhoto":      "cover",
			"cover_photo":     "cover",
			"banner":          "cover",
		},
		MaxFileSize:  5 * mb,
		MaxFiles:     2,
		MIMEPrefixes: []string{"image/"},
		FieldError:   "Only 'profile' and 'cover' are allowed.",
		MIMEError:    "Only image files are allowed!",
	}

	PostPolicy = Policy{
		Context:      "post",
		Fields:       []Field{{Name: "images", Folder: "posts", Width: 1280}},
		MaxFileSize:  5 * mb,
		MaxFiles:     5,
		MIMEPrefixes: []string{"image/"},
		FieldError:   "Only 'images' is allowed for posts.",
		MIMEError:    "Only image files are allowed!",
	}

	MessagePolicy = Policy{
		Context:      "message",
		Fields:       []Field{{Name: "image", Folder: "messages", Width: 1280}},
		MaxFileSize:  5 * mb,
		MaxFiles:     1,
		MIMEPrefixes: []string{"image/"},
		FieldError:   "Only 'image' is allowed for messages.",
		MIMEError:    "Only image files are allowed!",
	}

	StoryPolicy = Policy{
		Context:      "story",
		Fields:       []Field{{Name: "media", Folder: "stories"}},
		MaxFileSize:  10 * mb,
		MaxFiles:     1,
		MIMEPrefixes: []string{"image/", "video/"},
		FieldError:   "Only 'media' is allowed for stories.",
		MIMEError:    "Only image and video files are allowed for stories!",
	}
)

// Resolve maps a form field name, or one of its aliases, to the accepted field.
func (p Policy) Resolve(name string) (Field, bool) {
	if canonical, ok := p.Aliases[name]; ok {
		name = canonical
	}
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AllowsMIME reports whether the content type matches one of the allowed prefixes.
func (p Policy) AllowsMIME(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range p.MIMEPrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
