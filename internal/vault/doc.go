// package vault stores and resolves the user's API credentials.
//
// Values are obfuscated before they are persisted or exported so they are not
// readable at a glance. The encoding is salted base64 and is NOT encryption:
// anyone with the file can recover the values.
package vault
