package constants

const (
	QueryParamAccessType          = "access_type"
	QueryParamAuthorizationCode   = "code"
	QueryParamCodeChallenge       = "code_challenge"
	QueryParamCodeChallengeMethod = "code_challenge_method"
	QueryParamError               = "error"
	QueryParamErrorDescription    = "error_description"
	QueryParamErrorURI            = "error_uri"
	QueryParamPrompt              = "prompt"
	QueryParamState               = "state"

	AccessTypeOffline   = "offline"
	CodeChallengeMethod = "S256"
	PromptConsent       = "consent"

	// OOBRedirectURI tells the authorization server to display the code
	// to the user instead of redirecting to the application.
	OOBRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

	DefaultLocalServerHost = "localhost"
	DefaultLocalServerPort = 8080

	// URLPlaceholder is replaced with the authorization URL in prompt messages.
	URLPlaceholder = "{url}"

	DefaultAuthorizationPromptMessage = "Please visit this URL to authorize this application: " + URLPlaceholder
	DefaultSuccessMessage             = "The authentication flow has completed. You may close this window."
	DefaultCodePrompt                 = "Enter the authorization code: "
)
